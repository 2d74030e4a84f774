package nebula_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/nebula"
	"github.com/aretw0/nebula/pkg/codec"
	"github.com/aretw0/nebula/pkg/core"
	"github.com/aretw0/nebula/pkg/notary"
)

// Example_basic demonstrates committing a draft and retrieving the notarized document.
func Example_basic() {
	n, err := notary.Generate(codec.New())
	if err != nil {
		log.Fatal(err)
	}

	svc, err := nebula.New("", nebula.WithAdapter("memory"), nebula.WithNotary(n))
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if _, err := svc.PublishCertificate(ctx, n.Certificate()); err != nil {
		log.Fatal(err)
	}

	draft := core.Document{Tag: core.NewTag(), Version: core.Version{1}, Content: "This is my first document."}
	citation, err := svc.CommitDraft(ctx, draft.ID(), draft)
	if err != nil {
		log.Fatal(err)
	}

	doc, err := svc.RetrieveDocument(ctx, citation)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("%s %s, %d seal\n", doc.Version, doc.Content, len(doc.Seals))
	// Output:
	// v1 This is my first document., 1 seal
}

// ExampleNewTypedService demonstrates how to use the Generic Typed Wrapper for type safety.
func ExampleNewTypedService() {
	n, err := notary.Generate(codec.New())
	if err != nil {
		log.Fatal(err)
	}
	svc, err := nebula.New("", nebula.WithAdapter("memory"), nebula.WithNotary(n))
	if err != nil {
		log.Fatal(err)
	}
	ctx := context.Background()
	if _, err := svc.PublishCertificate(ctx, n.Certificate()); err != nil {
		log.Fatal(err)
	}

	type User struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}

	users := nebula.NewTypedService[User](svc)
	alice := users.New("user", User{Name: "Alice", Email: "alice@example.com"})
	citation, err := users.Commit(ctx, alice)
	if err != nil {
		log.Fatal(err)
	}

	doc, err := users.Retrieve(ctx, citation)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("User Name: %s\n", doc.Data.Name)
	// Output:
	// User Name: Alice
}
