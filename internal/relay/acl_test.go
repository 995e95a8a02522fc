// Copyright 2015 The Delix Project Authors. See the AUTHORS file at the top level directory.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package relay

import "testing"

func TestACLAllowsNothingConfiguredMeansAllowAll(t *testing.T) {
	acl, err := NewACL(nil)
	if err != nil {
		t.Fatalf("NewACL: %v", err)
	}
	if !acl.Allowed("203.0.113.5:54321") {
		t.Error("expected an empty ACL to allow every client")
	}
}

func TestACLAllowedWithinCIDR(t *testing.T) {
	acl, err := NewACL([]string{"10.0.1.0/24"})
	if err != nil {
		t.Fatalf("NewACL: %v", err)
	}
	if !acl.Allowed("10.0.1.42:1234") {
		t.Error("expected 10.0.1.42 to be allowed")
	}
	if acl.Allowed("10.0.2.1:1234") {
		t.Error("expected 10.0.2.1 to be denied")
	}
}

func TestACLRejectsUnparsableAddress(t *testing.T) {
	acl, err := NewACL([]string{"10.0.1.0/24"})
	if err != nil {
		t.Fatalf("NewACL: %v", err)
	}
	if acl.Allowed("not-an-address") {
		t.Error("expected an unparsable address to be denied")
	}
}

func TestNewACLRejectsInvalidCIDR(t *testing.T) {
	if _, err := NewACL([]string{"not-a-cidr"}); err == nil {
		t.Fatal("expected NewACL to reject an invalid CIDR")
	}
}
