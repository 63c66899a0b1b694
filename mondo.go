// Package mondo is the client SDK for the mondo document store. It speaks
// the JSON-RPC wire protocol over HTTP, or runs against an in-process
// backend through MockTransport for tests and embedded use.
//
// Filters, updates, and documents are plain Go values: use M for
// documents and A for arrays.
//
//	client, err := mondo.Connect(ctx, "http://localhost:8080")
//	coll := client.Database("app").Collection("users")
//	_, err = coll.InsertOne(ctx, mondo.M{"name": "ada", "age": 36})
package mondo

// M is a document literal: an unordered field map.
type M = map[string]any

// A is an array literal.
type A = []any
