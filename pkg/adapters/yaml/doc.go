/*
Package yaml loads flows and scripts from YAML documents.

A flow document lists flows with their nodes and edges:

	flows:
	  - name: Main
	    autostart: true
	    nodes:
	      - {id: start, kind: start}
	      - {id: ask, action: {indicate: question}}
	      - {id: total, action: {derive: {object: total, formula: sum, inputs: [a, b]}}}
	      - {id: sub, call: {flow: Sub}}
	      - {id: K, kind: checkpoint}
	    edges:
	      - {from: start, to: ask}
	      - {from: ask, to: total, when: {equal: {object: question, value: true}}}
	      - {from: sub, to: K, when: {active: {flow: Sub, node: end}}}

Guards are maps with a single operator key: equal, less, greater, known, not,
and, or, active. Actions are set, indicate and derive; derive formulas are
looked up in a registry.Registry.
*/
package yaml
