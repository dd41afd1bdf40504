/*
Package dsl provides a fluent Go builder for flux flows.

It is an alternative to loading flow documents: flows are declared in code,
type-checked, and compiled with flow.Build. Nodes keep their declaration order
and edges fire in the order they were declared.

Example usage:

	sub := dsl.New("Triage")
	sub.Add("start").Start().Go("ask")
	sub.Add("ask").Do(action.Indicate("fever")).When(cond.Known("fever"), "done")
	sub.Add("done").End()

	main := dsl.New("Main").Autostart()
	main.Add("start").Start().Go("triage")
	main.Add("triage").Call("Triage", "start").Exit("done", "report")
	main.Add("report").Do(action.Set("report", true))

	f, err := main.Build()
*/
package dsl
