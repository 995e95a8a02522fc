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

package conn

import "testing"

func TestParseDSCPKnownNames(t *testing.T) {
	cases := map[string]int{
		"EF":   46,
		"af41": 34,
		" CS5 ": 40,
		"":     0,
	}
	for name, want := range cases {
		got, err := ParseDSCP(name)
		if err != nil {
			t.Errorf("ParseDSCP(%q): %v", name, err)
			continue
		}
		if got != want {
			t.Errorf("ParseDSCP(%q) = %d, want %d", name, got, want)
		}
	}
}

func TestParseDSCPUnknownName(t *testing.T) {
	if _, err := ParseDSCP("bogus"); err == nil {
		t.Fatal("expected an error for an unknown DSCP name")
	}
}
