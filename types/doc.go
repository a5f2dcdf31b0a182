/*
Package types provides the shared type definitions for agentmesh.

types is the lowest-level package in the module and depends on nothing
internal, so every other package (scheduler, orchestrator, agents, tools)
can share its contracts without import cycles.

Core types:

  - Task / TaskStatus: one unit of work produced by the planning phase
  - ToolDescriptor: a callable tool read from the tool catalog
  - Error / ErrorCode: structured error taxonomy (validation, cycle, task,
    phase, transport)
*/
package types
