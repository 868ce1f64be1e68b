// Package maestro is a declarative multi-agent workflow orchestrator built
// on the A2A (Agent-to-Agent) protocol and OCI artifact registries.
//
// Workflows are YAML documents describing a step graph. Each leaf step
// invokes a named skill; maestro discovers which agent serves the skill by
// scanning agent cards published to an OCI registry, calls the agent over
// JSON-RPC, and files the result in a shared execution context that later
// steps reference through template expressions.
//
// # Quick start
//
// Publish a workflow and run it:
//
//	maestro push workflow examples/workflows/image-pipeline.yaml
//	maestro run image-pipeline --input image_url=http://example.com/cat.png
//
// A workflow document:
//
//	metadata:
//	  id: image-pipeline
//	  name: Image Pipeline
//	  version: 1.0.0
//	steps:
//	  - id: analyze
//	    skill: analyze-image
//	    inputs:
//	      url: "{{ workflow.input.image_url }}"
//	    outputs: analysis
//	  - id: summarize
//	    skill: summarize
//	    inputs:
//	      text: "{{ steps.analyze.outputs.analysis }}"
//
// # Using as a Go library
//
//	client := oci.NewClient("http://localhost:5000")
//	disc := discovery.New(client)
//	eng := engine.New(disc)
//	result, err := eng.Run(ctx, "image-pipeline", input, "v1")
//
// The packages compose leaves-first: pkg/oci speaks the OCI Distribution
// API, pkg/discovery maps skill and workflow ids to handles, pkg/workflow
// owns the document model and template resolver, and pkg/engine interprets
// the step graph. pkg/a2a carries the wire protocol plus a server harness
// for hosting agents.
package maestro
