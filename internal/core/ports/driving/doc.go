// Package driving defines the interfaces through which outer surfaces
// (CLI, tests) drive the core: the fetcher and its run states.
package driving
