// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: November 2025
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

package clock

import (
	"testing"
	"time"
)

func TestVirtualAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	v := NewVirtual(start)
	if !v.Now().Equal(start) {
		t.Fatalf("expected initial instant %v, got %v", start, v.Now())
	}
	next := v.Advance(5 * time.Second)
	want := start.Add(5 * time.Second)
	if !next.Equal(want) {
		t.Fatalf("expected advance to return %v, got %v", want, next)
	}
	if !v.Now().Equal(want) {
		t.Fatalf("expected Now() to reflect advance, got %v", v.Now())
	}
}

func TestVirtualAdvanceIgnoresNegative(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	v := NewVirtual(start)
	v.Advance(-5 * time.Second)
	if !v.Now().Equal(start) {
		t.Fatalf("expected negative advance to be a no-op, got %v", v.Now())
	}
}

func TestSystemClockAdvances(t *testing.T) {
	var s System
	t1 := s.Now()
	time.Sleep(time.Millisecond)
	t2 := s.Now()
	if !t2.After(t1) {
		t.Fatalf("expected system clock to advance")
	}
}
