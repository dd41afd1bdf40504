package flux_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/flux"
	"github.com/aretw0/flux/pkg/action"
	"github.com/aretw0/flux/pkg/cond"
	"github.com/aretw0/flux/pkg/dsl"
)

// Example shows activation following the facts: the fever node is active only
// while its guard holds, and its conclusion is undone with it.
func Example() {
	b := dsl.New("Triage").Autostart()
	b.Add("start").Start().When(cond.Greater("temperature", 38), "fever")
	b.Add("fever").Do(action.Set("diagnosis", "fever"))

	engine, err := flux.New(flux.WithFlows(b.MustBuild()))
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	s := engine.NewSession("case-1", nil)
	if err := s.Init(ctx); err != nil {
		log.Fatal(err)
	}

	fmt.Println("fever:", s.IsActive("Triage", "fever"))
	if err := s.Set(ctx, "temperature", 39.5); err != nil {
		log.Fatal(err)
	}
	diagnosis, _ := s.Board().Value(ctx, "diagnosis")
	fmt.Println("fever:", s.IsActive("Triage", "fever"), "diagnosis:", diagnosis)

	if err := s.Retract(ctx, "temperature"); err != nil {
		log.Fatal(err)
	}
	_, err = s.Board().Value(ctx, "diagnosis")
	fmt.Println("fever:", s.IsActive("Triage", "fever"), "diagnosis known:", err == nil)

	// Output:
	// fever: false
	// fever: true diagnosis: fever
	// fever: false diagnosis known: false
}

// ExampleEngine_checkpoint shows a checkpoint freezing a conclusion: once the
// snapshot is taken, retracting the fact that led there keeps the result.
func ExampleEngine_checkpoint() {
	b := dsl.New("Checkout")
	b.Add("start").Start().When(cond.Equal("answer", "yes"), "record")
	b.Add("record").Do(action.Set("confirmed", true)).Go("frozen")
	b.Add("frozen").Checkpoint()

	engine, err := flux.New(flux.WithFlows(b.MustBuild()))
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	s := engine.NewSession("case-2", nil)
	if err := s.Start(ctx, "Checkout", "start"); err != nil {
		log.Fatal(err)
	}
	if err := s.Set(ctx, "answer", "yes"); err != nil {
		log.Fatal(err)
	}
	fmt.Println("runs:", s.Runs()[0].Starts)

	if err := s.Retract(ctx, "answer"); err != nil {
		log.Fatal(err)
	}
	confirmed, _ := s.Board().Value(ctx, "confirmed")
	fmt.Println("confirmed:", confirmed)

	// Output:
	// runs: [Checkout/frozen]
	// confirmed: true
}
