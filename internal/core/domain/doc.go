// Package domain contains the core types of the ingestion engine.
//
// These types have no dependencies on infrastructure: raw responses,
// raw items, documents, checkpoints and the error taxonomy live here.
// Everything else in the application depends on this package; it
// depends on nothing but the standard library.
package domain
