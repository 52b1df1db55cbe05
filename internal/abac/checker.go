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

// Package abac evaluates the built-in attribute conditions: resource
// ownership, department isolation, and clearance level. Every check is
// independent and all failures are collected, so callers see the
// complete failure set rather than the first mismatch. A check whose
// attributes are absent on either side is skipped, not failed.
package abac

import (
	"encoding/json"
	"fmt"
)

// Attribute keys consulted by the built-in checks.
const (
	AttrOwnerID            = "owner_id"
	AttrDepartment         = "department"
	AttrRequiredDepartment = "required_department"
	AttrSensitivity        = "sensitivity"
	AttrClearanceLevel     = "clearance_level"
)

// Result of an attribute check pass.
type Result struct {
	Satisfied bool
	Failed    []string
}

// Check is a pure function over the request's attribute maps. action and
// requestCtx participate in the signature for parity with policy
// evaluation; the built-in checks do not consult them today.
func Check(principalID, action string, principalAttrs, resourceAttrs, requestCtx map[string]any) Result {
	var failed []string

	if owner, ok := stringAttr(resourceAttrs, AttrOwnerID); ok && owner != principalID {
		failed = append(failed, fmt.Sprintf("ownership: resource owned by %s, not by principal %s", owner, principalID))
	}

	dept, haveDept := stringAttr(principalAttrs, AttrDepartment)
	required, haveRequired := stringAttr(resourceAttrs, AttrRequiredDepartment)
	if haveDept && haveRequired && dept != required {
		failed = append(failed, fmt.Sprintf("department: resource requires %s, principal belongs to %s", required, dept))
	}

	sensitivity, haveSensitivity := numberAttr(resourceAttrs, AttrSensitivity)
	clearance, haveClearance := numberAttr(principalAttrs, AttrClearanceLevel)
	if haveSensitivity && haveClearance && sensitivity > clearance {
		failed = append(failed, fmt.Sprintf("clearance: resource sensitivity %g exceeds principal clearance %g", sensitivity, clearance))
	}

	return Result{Satisfied: len(failed) == 0, Failed: failed}
}

func stringAttr(attrs map[string]any, key string) (string, bool) {
	if attrs == nil {
		return "", false
	}
	v, ok := attrs[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// numberAttr coerces the usual JSON and Go numeric representations. A
// present but non-numeric value is treated as absent (check skipped).
func numberAttr(attrs map[string]any, key string) (float64, bool) {
	if attrs == nil {
		return 0, false
	}
	v, ok := attrs[key]
	if !ok || v == nil {
		return 0, false
	}
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
