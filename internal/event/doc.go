// Package event provides a pub-sub event bus for observing coordination
// activity inside one agentsync process.
//
// The bus is strictly in-process. Agents never talk to each other through it;
// the shared store remains the only synchronization primitive between them.
// Components publish lifecycle events so that logging, Prometheus metrics, and
// the CLI can react without the store layer depending on any of them.
//
// # Event Categories
//
// Action records:
//   - [ActionSetEvent], [ActionCompletedEvent], [ActionStoppedEvent]
//   - [CleanupEvent]: emitted after a garbage-collection sweep
//   - [DependencyWaitEvent]: emitted when a dependency wait ends
//
// Workflow stages:
//   - [StageStartedEvent], [StageBlockedEvent], [StageCompletedEvent]
//
// Human-in-the-loop:
//   - [ApprovalRequestedEvent], [ApprovalResolvedEvent]
//   - [EmergencyStopEvent]
//
// # Thread Safety
//
// [Bus] is safe for concurrent use. Handlers are called synchronously on the
// publishing goroutine and are protected against panics.
//
// # Basic Usage
//
//	bus := event.NewBus()
//	bus.Subscribe(event.TypeStageStarted, func(e event.Event) {
//	    started := e.(event.StageStartedEvent)
//	    log.Printf("stage %s started by %s", started.Stage, started.AgentID)
//	})
//	bus.Publish(event.NewStageStartedEvent("frontend_development", "kilo"))
package event
