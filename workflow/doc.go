// Package workflow implements the stage orchestration engine: a
// dependency graph of agent-bound stages executed with parallel
// groups, conditional skipping, human approval gates, and per-stage
// error policies (stop, skip with cascading, bounded retry).
//
// The caller supplies the stage list and an AgentInvoker; the engine
// owns scheduling, status transitions, and the synchronized result
// store. A workflow that halts on a Stop-policy failure still drains
// in-flight parallel stages before returning.
package workflow
