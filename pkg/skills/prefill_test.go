// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"reflect"
	"testing"
)

func TestApplyDescriptionDefaults(t *testing.T) {
	ec := NewExecutionContext(mustSkill(t, Spec{
		Name: "deploy",
		Arguments: []ArgumentSpec{
			{Name: "region", Description: "Target region. Defaults to eu-west-1."},
			{Name: "replicas", Type: "integer", Description: "Replica count (default to 3)"},
			{Name: "label", Description: `Display label, defaults to "my service"`},
			{Name: "verbose", Type: "boolean", Description: "defaults to maybe"},
			{Name: "owner", Description: "Owner, defaults to ops"},
		},
	}))
	if err := ec.Set("owner", "dev"); err != nil {
		t.Fatalf("set: %v", err)
	}
	set := ApplyDescriptionDefaults(ec)

	want := map[string]any{"region": "eu-west-1", "replicas": 3, "label": "my service", "owner": "dev"}
	if !reflect.DeepEqual(ec.Args, want) {
		t.Fatalf("args = %#v, want %#v", ec.Args, want)
	}
	if len(set) != 3 {
		t.Fatalf("expected 3 defaults applied, got %v", set)
	}
}

func TestPrefillFromTask(t *testing.T) {
	newCtx := func() *ExecutionContext {
		return NewExecutionContext(mustSkill(t, Spec{
			Name: "add-user",
			Arguments: []ArgumentSpec{
				{Name: "username", Required: true},
				{Name: "role", Type: "%roles"},
				{Name: "firstName"},
				{Name: "lastName"},
			},
			Enumerators: map[string]EnumeratorFunc{"roles": roleOptions},
		}))
	}

	tests := []struct {
		desc string
		want map[string]any
	}{
		{
			desc: "create user username mlee for system administrator Mary Lee",
			want: map[string]any{"username": "mlee", "role": "SystemAdmin", "firstName": "Mary", "lastName": "Lee"},
		},
		{
			desc: "add a new project manager",
			want: map[string]any{"role": "ProjectManager"},
		},
		{
			desc: "register 42 people",
			want: map[string]any{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			ec := newCtx()
			PrefillFromTask(ec, tt.desc)
			if !reflect.DeepEqual(ec.Args, tt.want) {
				t.Fatalf("args = %#v, want %#v", ec.Args, tt.want)
			}
		})
	}
}

func TestPrefillKeepsExistingValues(t *testing.T) {
	ec := NewExecutionContext(mustSkill(t, Spec{
		Name:        "add-user",
		Arguments:   []ArgumentSpec{{Name: "role", Type: "%roles"}, {Name: "givenName"}},
		Enumerators: map[string]EnumeratorFunc{"roles": roleOptions},
	}))
	ec.Args["role"] = "Member"
	ec.Args["givenName"] = "Zed"
	if set := PrefillFromTask(ec, "add project manager jhon smith"); len(set) != 0 {
		t.Fatalf("existing values must not be overwritten, set %v", set)
	}
}
