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

package authz

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const maxNameLength = 256

// Validate checks the structural shape of a request and returns every
// violation found, so a caller can fix all of them in one pass. A nil
// slice means the request is well formed.
func Validate(req *Request) []string {
	var violations []string

	if req.TenantID == "" {
		violations = append(violations, "tenantId is required")
	} else if err := uuid.Validate(req.TenantID); err != nil {
		violations = append(violations, "tenantId must be a valid UUID")
	}

	if req.PrincipalID == "" {
		violations = append(violations, "principalId is required")
	} else if err := uuid.Validate(req.PrincipalID); err != nil {
		violations = append(violations, "principalId must be a valid UUID")
	}

	if req.Action == "" {
		violations = append(violations, "action is required")
	} else if msg := checkName("action", req.Action); msg != "" {
		violations = append(violations, msg)
	}

	if req.Resource.Type == "" {
		violations = append(violations, "resource.type is required")
	} else if msg := checkName("resource.type", req.Resource.Type); msg != "" {
		violations = append(violations, msg)
	}

	if req.Resource.ID == "" {
		violations = append(violations, "resource.id is required")
	} else if msg := checkName("resource.id", req.Resource.ID); msg != "" {
		violations = append(violations, msg)
	}

	return violations
}

// checkName rejects values that would corrupt cache keys or audit
// records: the colon is the cache key separator and whitespace breaks
// log scraping.
func checkName(field, value string) string {
	if len(value) > maxNameLength {
		return fmt.Sprintf("%s exceeds %d characters", field, maxNameLength)
	}
	if strings.ContainsAny(value, ": \t\n") {
		return fmt.Sprintf("%s contains forbidden characters (colon or whitespace)", field)
	}
	for _, r := range value {
		if r < 0x20 || r == 0x7f {
			return fmt.Sprintf("%s contains control characters", field)
		}
	}
	return ""
}
