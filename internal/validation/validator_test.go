// Multacache - Traffic Violation Cache and Synchronization Service
// Copyright 2026 V. Serra (viaserra)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/viaserra/multacache

package validation

import (
	"strings"
	"testing"
)

type pageQuery struct {
	Page   int    `validate:"min=1"`
	Limit  int    `validate:"min=1,max=500"`
	Status string `validate:"omitempty,oneof=open paid cancelled"`
	Plate  string `validate:"omitempty,min=3"`
}

func TestValidateStructPasses(t *testing.T) {
	q := pageQuery{Page: 1, Limit: 50, Status: "open", Plate: "ABC1D23"}
	if err := ValidateStruct(&q); err != nil {
		t.Fatalf("expected valid struct, got %v", err)
	}
}

func TestValidateStructSingleField(t *testing.T) {
	q := pageQuery{Page: 0, Limit: 50}
	err := ValidateStruct(&q)
	if err == nil {
		t.Fatal("expected validation error")
	}
	fields := err.Fields()
	if len(fields) != 1 {
		t.Fatalf("expected 1 field error, got %d", len(fields))
	}
	if fields[0].Field() != "Page" || fields[0].Tag() != "min" {
		t.Errorf("unexpected field error: field=%s tag=%s", fields[0].Field(), fields[0].Tag())
	}
	if got := err.Error(); got != "Page must be at least 1" {
		t.Errorf("unexpected message: %q", got)
	}
}

func TestValidateStructMultipleFields(t *testing.T) {
	q := pageQuery{Page: 0, Limit: 9999, Status: "bogus"}
	err := ValidateStruct(&q)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if len(err.Fields()) != 3 {
		t.Fatalf("expected 3 field errors, got %d", len(err.Fields()))
	}
	msg := err.Error()
	for _, want := range []string{
		"Page must be at least 1",
		"Limit must be at most 500",
		"Status must be one of: open paid cancelled",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestValidateStructStringLength(t *testing.T) {
	q := pageQuery{Page: 1, Limit: 10, Plate: "AB"}
	err := ValidateStruct(&q)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if got := err.Error(); got != "Plate must be at least 3 characters" {
		t.Errorf("unexpected message: %q", got)
	}
}

func TestValidatorIsSingleton(t *testing.T) {
	if Validator() != Validator() {
		t.Fatal("expected the same validator instance on repeated calls")
	}
}
