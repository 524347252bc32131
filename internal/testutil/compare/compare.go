// Package compare provides gocheck checkers with readable diffs, adapted
// from gravitational-gravity/lib/compare for use across this repo's test
// suites (manifest round-trips, diff results, index contents).
package compare

import (
	"fmt"
	"reflect"
	"runtime/debug"
	"sort"

	"github.com/davecgh/go-spew/spew"
	"github.com/kylelemons/godebug/diff"
	check "gopkg.in/check.v1"
)

// DeepCompare asserts a and b are deeply equal, attaching a readable diff
// and stack trace to the failure if not.
func DeepCompare(c *check.C, a, b interface{}) {
	c.Assert(a, check.DeepEquals, b, check.Commentf("%v\nStack:\n%v\n", Diff(a, b), string(debug.Stack())))
}

// DeepEquals is a gocheck checker with a readable diff on mismatch.
var DeepEquals check.Checker = &deepEqualsChecker{
	&check.CheckerInfo{Name: "DeepEquals", Params: []string{"obtained", "expected"}},
}

type deepEqualsChecker struct {
	*check.CheckerInfo
}

func (checker *deepEqualsChecker) Check(params []interface{}, names []string) (result bool, error string) {
	result = reflect.DeepEqual(params[0], params[1])
	if !result {
		error = Diff(params[0], params[1])
	}
	return result, error
}

// SortedSliceEquals compares two slices after sorting copies of them,
// useful for asserting set-like results (e.g. diff.Result.Assets paths,
// archiveutil staged paths, pkgindex.PendingDownloads) without depending on
// map/walk iteration order. Unlike the upstream checker this is adapted
// from, it sorts a plain slice value directly via reflection rather than
// requiring the caller to wrap both sides in a sort.Interface.
var SortedSliceEquals check.Checker = &sortedSliceEqualsChecker{
	&check.CheckerInfo{Name: "SortedSliceEquals", Params: []string{"obtained", "expected"}},
}

type sortedSliceEqualsChecker struct {
	*check.CheckerInfo
}

func (checker *sortedSliceEqualsChecker) Check(params []interface{}, names []string) (result bool, error string) {
	obtained, errMsg := sortedCopy(params[0])
	if errMsg != "" {
		return false, errMsg
	}
	expected, errMsg := sortedCopy(params[1])
	if errMsg != "" {
		return false, errMsg
	}

	result = reflect.DeepEqual(obtained, expected)
	if !result {
		error = Diff(obtained, expected)
	}
	return result, error
}

// sortedCopy returns a sorted copy of the slice v, ordering elements by the
// natural ordering of their kind (string, int*, uint*, or float*).
func sortedCopy(v interface{}) (interface{}, string) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Sprintf("SortedSliceEquals: %T is not a slice", v)
	}
	out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
	reflect.Copy(out, rv)
	sort.Slice(out.Interface(), func(i, j int) bool {
		return lessValue(out.Index(i), out.Index(j))
	})
	return out.Interface(), ""
}

func lessValue(a, b reflect.Value) bool {
	switch a.Kind() {
	case reflect.String:
		return a.String() < b.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return a.Int() < b.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return a.Uint() < b.Uint()
	case reflect.Float32, reflect.Float64:
		return a.Float() < b.Float()
	default:
		return false
	}
}

// Diff returns a human-readable difference between two objects.
func Diff(a, b interface{}) string {
	d := &spew.ConfigState{Indent: " ", DisableMethods: true, DisablePointerMethods: true, DisablePointerAddresses: true}
	return diff.Diff(d.Sdump(a), d.Sdump(b))
}

// Sdump returns a's debug-friendly text representation.
func Sdump(a interface{}) string {
	d := &spew.ConfigState{Indent: " ", DisableMethods: true, DisablePointerMethods: true, DisablePointerAddresses: true}
	return d.Sdump(a)
}
