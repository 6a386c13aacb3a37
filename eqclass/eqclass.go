package eqclass

import (
	"bytes"
	"sort"
	"strconv"

	"github.com/bits-and-blooms/bitset"
	"github.com/pkg/errors"

	"github.com/tsawler/pdfsizeopt/core"
	"github.com/tsawler/pdfsizeopt/logging"
)

// Options controls FindEqclasses.
type Options struct {
	// RemoveUnused drops objects not reachable from the trailer.
	RemoveUnused bool

	// Renumber assigns numbers 1, 2, ... by decreasing reference count.
	// Otherwise every class keeps the number of its representative.
	Renumber bool

	// PinPages keeps every /Type/Page object in a class of its own.
	PinPages bool

	// Pinned objects are never merged with others.
	Pinned []int
}

// Result is the rewritten document and how objects moved.
type Result struct {
	Document *core.Document

	// Mapping gives the new number of every object that survived, merged
	// objects included.
	Mapping map[int]int

	// Classes is the number of classes, the trailer's included.
	Classes int

	// Unused counts the objects dropped as unreachable.
	Unused int
}

// node is an object, or the trailer at index 0.
type node struct {
	num   int
	obj   *core.IndirectObject
	head  []byte // references replaced by 0 0 R
	refs  []int  // node index of each reference, -1 if missing
	class int
}

// FindEqclasses merges objects that are equivalent: identical heads up to
// the objects they reference, identical streams, and references to
// equivalent objects. One representative of each class, the lowest
// numbered, is kept, and references are rewritten to point to
// representatives. Missing reference targets become null.
func FindEqclasses(doc *core.Document, opts Options) (*Result, error) {
	if doc.Trailer == nil {
		return nil, errors.New("document without trailer")
	}
	nums := doc.Numbers()
	nodes := make([]*node, 0, len(nums)+1)
	nodes = append(nodes, &node{obj: doc.Trailer})
	index := make(map[int]int, len(nums))
	for _, num := range nums {
		index[num] = len(nodes)
		nodes = append(nodes, &node{num: num, obj: doc.Objects[num]})
	}

	for _, n := range nodes {
		var refNums []int
		head, err := core.CompressValue(n.obj.Head(), &core.CompressOptions{
			MapRef: core.PlaceholderRefs,
			Refs:   &refNums,
		})
		if err != nil {
			if n.num == 0 {
				return nil, errors.Wrap(err, "trailer")
			}
			return nil, errors.Wrapf(err, "object %d", n.num)
		}
		n.head = head
		n.refs = make([]int, len(refNums))
		for i, num := range refNums {
			if j, ok := index[num]; ok {
				n.refs[i] = j
			} else {
				n.refs[i] = -1
			}
		}
	}

	pinned := make(map[int]bool, len(opts.Pinned))
	for _, num := range opts.Pinned {
		pinned[num] = true
	}
	classes := initialClasses(nodes, pinned, opts.PinPages)
	for {
		split := refine(nodes)
		if split == classes {
			break
		}
		classes = split
	}

	reps := make([]int, classes) // class -> node index
	for i := len(nodes) - 1; i >= 0; i-- {
		reps[nodes[i].class] = i
	}

	keep := bitset.New(uint(classes))
	inRefs := make([]int, classes)
	if opts.RemoveUnused {
		queue := []int{nodes[0].class}
		keep.Set(uint(nodes[0].class))
		for len(queue) > 0 {
			c := queue[0]
			queue = queue[1:]
			for _, ref := range nodes[reps[c]].refs {
				if ref < 0 {
					continue
				}
				target := nodes[ref].class
				inRefs[target]++
				if !keep.Test(uint(target)) {
					keep.Set(uint(target))
					queue = append(queue, target)
				}
			}
		}
	} else {
		for c := 0; c < classes; c++ {
			keep.Set(uint(c))
			for _, ref := range nodes[reps[c]].refs {
				if ref >= 0 {
					inRefs[nodes[ref].class]++
				}
			}
		}
	}

	newNums := assignNumbers(nodes, reps, keep, inRefs, opts.Renumber)

	out := core.NewDocument(doc.Version)
	out.FileSize = doc.FileSize
	mapRef := func(num int) (int, bool) {
		j, ok := index[num]
		if !ok {
			return 0, false
		}
		n, ok := newNums[nodes[j].class]
		return n, ok
	}
	for c := 0; c < classes; c++ {
		if !keep.Test(uint(c)) {
			continue
		}
		rep := nodes[reps[c]]
		head, err := core.CompressValue(rep.obj.Head(), &core.CompressOptions{MapRef: mapRef})
		if err != nil {
			return nil, errors.Wrapf(err, "object %d", rep.num)
		}
		if c == nodes[0].class {
			out.Trailer = core.NewObject(head, nil)
			continue
		}
		out.Objects[newNums[c]] = core.NewObject(head, rep.obj.Stream)
	}

	res := &Result{
		Document: out,
		Mapping:  make(map[int]int, len(nums)),
		Classes:  classes,
	}
	for _, n := range nodes[1:] {
		if num, ok := newNums[n.class]; ok {
			res.Mapping[n.num] = num
		} else {
			res.Unused++
		}
	}
	logging.Logger().Debug("found equivalence classes",
		"objects", len(nums), "classes", classes, "kept", len(out.Objects), "unused", res.Unused)
	return res, nil
}

// initialClasses groups nodes by head and stream. The trailer and pinned
// objects get classes of their own. It returns the number of classes.
func initialClasses(nodes []*node, pinned map[int]bool, pinPages bool) int {
	byKey := make(map[string]int)
	classes := 0
	for i, n := range nodes {
		if i == 0 || pinned[n.num] || (pinPages && isPage(n)) {
			n.class = classes
			classes++
			continue
		}
		key := make([]byte, 0, len(n.head)+len(n.obj.Stream)+8)
		key = append(key, n.head...)
		if n.obj.HasStream() {
			key = append(key, "\x00stream\x00"...)
			key = append(key, n.obj.Stream...)
		}
		c, ok := byKey[string(key)]
		if !ok {
			c = classes
			classes++
			byKey[string(key)] = c
		}
		n.class = c
	}
	return classes
}

func isPage(n *node) bool {
	if !bytes.Contains(n.head, []byte("/Page")) {
		return false
	}
	t, _ := n.obj.Get("Type").(core.Name)
	return t == "Page"
}

// refine splits classes whose members reference different classes and
// returns the new number of classes. Class numbers follow the order of
// the first member, so the result is deterministic.
func refine(nodes []*node) int {
	next := make(map[string]int)
	classes := make([]int, len(nodes))
	var key []byte
	for i, n := range nodes {
		key = strconv.AppendInt(key[:0], int64(n.class), 10)
		for _, ref := range n.refs {
			key = append(key, ',')
			if ref < 0 {
				key = append(key, '-')
			} else {
				key = strconv.AppendInt(key, int64(nodes[ref].class), 10)
			}
		}
		c, ok := next[string(key)]
		if !ok {
			c = len(next)
			next[string(key)] = c
		}
		classes[i] = c
	}
	for i, n := range nodes {
		n.class = classes[i]
	}
	return len(next)
}

// assignNumbers gives each kept class other than the trailer's its output
// object number.
func assignNumbers(nodes []*node, reps []int, keep *bitset.BitSet, inRefs []int, renumber bool) map[int]int {
	trailer := nodes[0].class
	var order []int
	for c := range reps {
		if c != trailer && keep.Test(uint(c)) {
			order = append(order, c)
		}
	}
	newNums := make(map[int]int, len(order))
	if !renumber {
		for _, c := range order {
			newNums[c] = nodes[reps[c]].num
		}
		return newNums
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if inRefs[a] != inRefs[b] {
			return inRefs[a] > inRefs[b]
		}
		return nodes[reps[a]].num < nodes[reps[b]].num
	})
	for i, c := range order {
		newNums[c] = i + 1
	}
	return newNums
}
