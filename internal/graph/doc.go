// Package graph defines the lazy raster-algebra expression language shared by
// the layer providers and the engines that evaluate them.
//
// Expressions are plain values. Providers compose them freely without touching
// the network; an [Engine] evaluates a finished expression once, either to a
// number/dictionary ([Engine.Evaluate]) or to a renderable map ([Engine.GetMap]).
//
// Conditional logic that depends on data (for example "are there any water
// vapour records for this day?") is expressed as a [Branch] node so the engine,
// not the caller, picks the branch.
package graph
