// Package pages walks the page tree of a loaded document.
//
// The optimizer needs the page objects in order so that it can keep them
// apart while merging equivalent objects, and so that it can check the
// /Count entries of the tree before writing.
//
//	tree, err := pages.NewTree(doc)
//	list, err := tree.Pages()
//	for _, p := range list {
//	    fmt.Println(p.Num, p.Contents())
//	}
//
// Pages inherit /Resources, /MediaBox, /CropBox and /Rotate from their
// ancestors. A node that is its own ancestor is reported as an error
// instead of being walked forever.
package pages
