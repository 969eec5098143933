package dap4

import (
	"strconv"
)

// WalkFunc is called for each data node during traversal.
// path names the node instance, e.g. "/obs[1].id" or "/track[3].lat";
// record numbers and element coordinates appear in brackets.
// dv is the node's view, nil when err is set.
// err is any error encountered reaching the node.
// Return nil to continue walking, or an error to stop.
type WalkFunc func(path string, dv DataVariable, err error) error

// WalkData traverses every node of every top-level variable of d, in
// schema order. The callback is called for each variable, each element of
// a compound array, each record of a sequence and each field. Cursors of
// elements, records and fields are released once their subtree has been
// visited.
//
// Example:
//
//	WalkData(dd, func(path string, dv DataVariable, err error) error {
//	    if err != nil {
//	        return err
//	    }
//	    if a, ok := dv.(*DataAtomic); ok {
//	        vals, _ := a.ReadAll()
//	        fmt.Println(path, vals)
//	    }
//	    return nil
//	})
func WalkData(d *DataDataset, fn WalkFunc) error {
	for _, v := range d.Variables() {
		dv, err := d.VariableData(v)
		if err != nil {
			if err := fn(v.FQN(), nil, err); err != nil {
				return err
			}
			continue
		}
		if err := walkNode(v.FQN(), dv, fn); err != nil {
			return err
		}
	}
	return nil
}

// walkNode calls fn for dv and then recursively for its children.
func walkNode(path string, dv DataVariable, fn WalkFunc) error {
	if err := fn(path, dv, nil); err != nil {
		return err
	}

	switch n := dv.(type) {
	case *DataAtomic:
		return nil
	case *DataStructure:
		return walkFields(path, n.fields, fn)
	case *DataRecord:
		return walkFields(path, n.fields, fn)
	case *DataSequence:
		i := int64(0)
		for rec, err := range n.Records() {
			childPath := path + "[" + strconv.FormatInt(i, 10) + "]"
			i++
			if err != nil {
				return fn(childPath, nil, err)
			}
			if err := walkChild(childPath, rec, fn); err != nil {
				return err
			}
		}
		return nil
	case *DataCompoundArray:
		shape := n.Variable().Shape()
		for i := int64(0); i < n.Count(); i++ {
			childPath := path + IndexOf(i, shape).String()
			elem, err := n.ReadAt(i)
			if err != nil {
				if err := fn(childPath, nil, err); err != nil {
					return err
				}
				continue
			}
			if err := walkChild(childPath, elem, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

func walkFields(path string, f fields, fn WalkFunc) error {
	for i := 0; i < f.FieldCount(); i++ {
		childPath := path + "." + f.Variable().Field(i).Name()
		child, err := f.Field(i)
		if err != nil {
			if err := fn(childPath, nil, err); err != nil {
				return err
			}
			continue
		}
		if err := walkChild(childPath, child, fn); err != nil {
			return err
		}
	}
	return nil
}

// walkChild walks a child node and releases its cursor afterwards.
func walkChild(path string, dv DataVariable, fn WalkFunc) error {
	err := walkNode(path, dv, fn)
	if rerr := dv.Cursor().Release(); err == nil {
		err = rerr
	}
	return err
}
