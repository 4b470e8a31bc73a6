// Package harness runs end-to-end scenarios against the matching engine.
//
// A scenario is a YAML file with setup steps, flow steps and assertions:
//
//	name: pair_and_confirm
//	description: two members are paired and both accept
//	flow:
//	  - action: submit
//	    owner: m1
//	    scope: ALL
//	  - action: submit
//	    owner: m2
//	    scope: ALL
//	  - action: match
//	    expect:
//	      report: {paired: 1}
//	  - action: accept
//	    actor: m1
//	    request: req-1
//	assertions:
//	  - type: request_status
//	    request: req-1
//	    status: PAIRED
//
// Every run gets a fresh in-memory store, a fake clock starting at Epoch,
// sequential IDs and a recording gateway. The clock only moves on advance
// steps. The resulting trace lists each flow step followed by the
// notifications it caused, and is compared against golden files with
// goldie.
//
// Step actions: submit, match, reconcile, accept, withdraw, advance.
//
// Assertion types: request_status, match_status, match_count, notified,
// notification_count, notification_order, final_state.
package harness
