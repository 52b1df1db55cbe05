// Copyright 2026 The Authzd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package policy

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// EvalContext is the normalized view of a request the condition tree is
// evaluated against. Attribute references resolve as:
//
//	principal.id, resource.type, resource.id, action  (context literals)
//	principal.*  -> PrincipalAttrs (dotted-path lookup)
//	resource.*   -> ResourceAttrs
//	context.*    -> RequestAttrs
type EvalContext struct {
	PrincipalID    string
	Action         string
	ResourceType   string
	ResourceID     string
	PrincipalAttrs map[string]any
	ResourceAttrs  map[string]any
	RequestAttrs   map[string]any
}

// evalCondition walks the condition tree. satisfied=false with failures
// is the ordinary mismatch path; a non-nil error is a structural problem
// (wrapping ErrMalformed) that denies the request upstream.
func evalCondition(c *Condition, ec *EvalContext) (satisfied bool, failures []string, err error) {
	if c.IsGroup() {
		return evalGroup(c, ec)
	}
	return evalLeaf(c, ec)
}

func evalGroup(c *Condition, ec *EvalContext) (bool, []string, error) {
	if len(c.Conditions) == 0 {
		return false, nil, fmt.Errorf("%w: group %q has no child conditions", ErrMalformed, c.Operator)
	}
	switch c.Operator {
	case OpAnd:
		all := true
		var failures []string
		for i := range c.Conditions {
			ok, childFailures, err := evalCondition(&c.Conditions[i], ec)
			if err != nil {
				return false, nil, err
			}
			if !ok {
				all = false
				failures = append(failures, childFailures...)
			}
		}
		return all, failures, nil
	case OpOr:
		var failures []string
		for i := range c.Conditions {
			ok, childFailures, err := evalCondition(&c.Conditions[i], ec)
			if err != nil {
				return false, nil, err
			}
			if ok {
				// Any satisfied child satisfies the group; accumulated
				// failures are irrelevant then.
				return true, nil, nil
			}
			failures = append(failures, childFailures...)
		}
		return false, failures, nil
	case OpNot:
		if len(c.Conditions) != 1 {
			return false, nil, fmt.Errorf("%w: \"not\" requires exactly one child, got %d", ErrMalformed, len(c.Conditions))
		}
		ok, _, err := evalCondition(&c.Conditions[0], ec)
		if err != nil {
			return false, nil, err
		}
		if ok {
			return false, []string{fmt.Sprintf("negated condition on %s is satisfied", describeChild(&c.Conditions[0]))}, nil
		}
		return true, nil, nil
	default:
		return false, nil, fmt.Errorf("%w: unknown group operator %q", ErrMalformed, c.Operator)
	}
}

func describeChild(c *Condition) string {
	if c.IsGroup() {
		return fmt.Sprintf("group %q", c.Operator)
	}
	return fmt.Sprintf("attribute %q", c.Attribute)
}

func evalLeaf(c *Condition, ec *EvalContext) (bool, []string, error) {
	if c.Attribute == "" {
		return false, nil, fmt.Errorf("%w: leaf condition missing attribute", ErrMalformed)
	}
	if !leafOperators[c.Operator] {
		return false, nil, fmt.Errorf("%w: unknown operator %q", ErrMalformed, c.Operator)
	}

	val, present := resolveAttribute(c.Attribute, ec)

	if c.Operator == OpExists {
		if !present {
			return false, []string{fmt.Sprintf("%s: attribute does not exist", c.Attribute)}, nil
		}
		return true, nil, nil
	}

	// A missing attribute never satisfies a comparison and never errors.
	if !present {
		return false, []string{fmt.Sprintf("%s: attribute missing, cannot satisfy %q", c.Attribute, c.Operator)}, nil
	}

	switch c.Operator {
	case OpEqual:
		if looseEqual(val, c.Value) {
			return true, nil, nil
		}
		return false, []string{fmt.Sprintf("%s: expected %v, got %v", c.Attribute, c.Value, val)}, nil
	case OpNotEqual:
		if !looseEqual(val, c.Value) {
			return true, nil, nil
		}
		return false, []string{fmt.Sprintf("%s: expected anything but %v", c.Attribute, c.Value)}, nil
	case OpGreater, OpLess, OpGreaterEqual, OpLessEqual:
		ok, err := compareOrdered(c.Operator, val, c.Value)
		if err != nil {
			return false, []string{fmt.Sprintf("%s: %v", c.Attribute, err)}, nil
		}
		if ok {
			return true, nil, nil
		}
		return false, []string{fmt.Sprintf("%s: %v is not %s %v", c.Attribute, val, c.Operator, c.Value)}, nil
	case OpIn:
		candidates := c.Values
		if len(candidates) == 0 {
			// A scalar Value holding a list is accepted for compatibility
			// with policies authored as {"value": [...]}.
			if vs, ok := c.Value.([]any); ok {
				candidates = vs
			}
		}
		for _, candidate := range candidates {
			if looseEqual(val, candidate) {
				return true, nil, nil
			}
		}
		return false, []string{fmt.Sprintf("%s: %v not in %v", c.Attribute, val, candidates)}, nil
	case OpContains:
		if containsValue(val, c.Value) {
			return true, nil, nil
		}
		return false, []string{fmt.Sprintf("%s: %v does not contain %v", c.Attribute, val, c.Value)}, nil
	}

	return false, nil, fmt.Errorf("%w: unknown operator %q", ErrMalformed, c.Operator)
}

// resolveAttribute maps a dotted attribute reference onto the context.
func resolveAttribute(attr string, ec *EvalContext) (any, bool) {
	switch attr {
	case "principal.id":
		return ec.PrincipalID, true
	case "resource.type":
		return ec.ResourceType, true
	case "resource.id":
		return ec.ResourceID, true
	case "action":
		return ec.Action, true
	}
	switch {
	case strings.HasPrefix(attr, "principal."):
		return lookupPath(ec.PrincipalAttrs, strings.TrimPrefix(attr, "principal."))
	case strings.HasPrefix(attr, "resource."):
		return lookupPath(ec.ResourceAttrs, strings.TrimPrefix(attr, "resource."))
	case strings.HasPrefix(attr, "context."):
		return lookupPath(ec.RequestAttrs, strings.TrimPrefix(attr, "context."))
	}
	// Unknown namespace reads as an absent attribute: creation-time
	// validation is the place to reject it, evaluation stays total.
	return nil, false
}

func lookupPath(attrs map[string]any, path string) (any, bool) {
	if attrs == nil {
		return nil, false
	}
	segments := strings.Split(path, ".")
	var current any = attrs
	for _, seg := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	if current == nil {
		return nil, false
	}
	return current, true
}

// looseEqual compares with numeric normalization: JSON decoding yields
// float64 while stored attributes may carry int, and 3 must equal 3.0.
func looseEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func compareOrdered(op string, a, b any) (bool, error) {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		if !ok {
			return false, fmt.Errorf("cannot compare %v with non-numeric %v", a, b)
		}
		return applyOrder(op, compareFloats(af, bf)), nil
	}
	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		if !ok {
			return false, fmt.Errorf("cannot compare %q with non-string %v", as, b)
		}
		return applyOrder(op, strings.Compare(as, bs)), nil
	}
	return false, fmt.Errorf("value %v is not ordered", a)
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func applyOrder(op string, cmp int) bool {
	switch op {
	case OpGreater:
		return cmp > 0
	case OpLess:
		return cmp < 0
	case OpGreaterEqual:
		return cmp >= 0
	case OpLessEqual:
		return cmp <= 0
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// containsValue checks substring containment for strings and element
// containment for slices.
func containsValue(container, item any) bool {
	if str, ok := container.(string); ok {
		if sub, ok := item.(string); ok {
			return strings.Contains(str, sub)
		}
		return false
	}
	v := reflect.ValueOf(container)
	if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
		for i := 0; i < v.Len(); i++ {
			if looseEqual(v.Index(i).Interface(), item) {
				return true
			}
		}
	}
	return false
}
