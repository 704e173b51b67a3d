// Package workflow gates a fixed stage graph on top of shared memory.
//
// A Graph names the stages, the agent each stage is assigned to, and the
// stages it depends on. The Coordinator starts a stage only when every
// non-exempt dependency's record is completed, lets only the assigned agent
// complete it, and derives each stage's state from its record:
//
//	absent           pending
//	active           in_progress
//	completed        completed
//	stopped          stopped
//
// The coordinator holds no stage state in memory. Any number of
// coordinators in any number of processes can share one store and see the
// same progress.
package workflow
