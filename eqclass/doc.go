// Package eqclass merges equivalent objects of a document.
//
// Two objects are equivalent when their heads are equal once every
// reference is replaced by a placeholder, their streams are equal, and
// their references point to equivalent objects, position by position.
// Classes start from equal heads and are split until every member of a
// class references the same classes; cycles of identical objects thus
// collapse into one.
//
//	res, err := eqclass.FindEqclasses(doc, eqclass.Options{
//	    RemoveUnused: true,
//	    Renumber:     true,
//	})
//
// With RemoveUnused, classes not reachable from the trailer are dropped.
// With Renumber, the most referenced objects get the smallest numbers.
package eqclass
