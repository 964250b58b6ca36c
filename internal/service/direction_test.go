package service

import (
	"errors"
	"testing"

	"github.com/lqCintern/farm-management-sub004/internal/dto"
)

func TestCanonicalPair(t *testing.T) {
	tests := []struct {
		x, y  string
		wantA string
		wantB string
	}{
		{"hh-a", "hh-b", "hh-a", "hh-b"},
		{"hh-b", "hh-a", "hh-a", "hh-b"},
		{"0f3c", "a001", "0f3c", "a001"},
	}
	for _, tt := range tests {
		a, b := canonicalPair(tt.x, tt.y)
		if a != tt.wantA || b != tt.wantB {
			t.Errorf("canonicalPair(%s,%s) = (%s,%s)，期望 (%s,%s)", tt.x, tt.y, a, b, tt.wantA, tt.wantB)
		}
	}
}

func TestResolveDelta(t *testing.T) {
	const a, b = "hh-a", "hh-b"

	tests := []struct {
		name       string
		worker     string
		requesting string
		hours      float64
		want       float64
		wantErr    bool
	}{
		{name: "b 为 a 出工记正", worker: b, requesting: a, hours: 6, want: 6},
		{name: "a 为 b 出工记负", worker: a, requesting: b, hours: 6, want: -6},
		{name: "小数工时", worker: b, requesting: a, hours: 2.5, want: 2.5},
		{name: "反向小数工时", worker: a, requesting: b, hours: 0.25, want: -0.25},
		{name: "工人户不在户对内", worker: "hh-x", requesting: a, hours: 4, wantErr: true},
		{name: "请求户不在户对内", worker: b, requesting: "hh-x", hours: 4, wantErr: true},
		{name: "同户自换", worker: a, requesting: a, hours: 4, wantErr: true},
		{name: "双方均不匹配", worker: "hh-x", requesting: "hh-y", hours: 4, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveDelta(a, b, tt.worker, tt.requesting, tt.hours)
			if tt.wantErr {
				if !errors.Is(err, ErrDirectionResolution) {
					t.Fatalf("期望 ErrDirectionResolution，实际: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("不应出错: %v", err)
			}
			if got != tt.want {
				t.Errorf("期望 delta=%v，实际=%v", tt.want, got)
			}
		})
	}
}

// 两个方向的记账互为相反数，且两户视角余额对称
func TestResolveDelta_Symmetry(t *testing.T) {
	for _, pair := range [][2]string{{"hh-a", "hh-b"}, {"hh-b", "hh-a"}} {
		x, y := pair[0], pair[1]
		a, b := canonicalPair(x, y)

		xForY, err := resolveDelta(a, b, x, y, 3)
		if err != nil {
			t.Fatalf("resolveDelta 失败: %v", err)
		}
		yForX, err := resolveDelta(a, b, y, x, 3)
		if err != nil {
			t.Fatalf("resolveDelta 失败: %v", err)
		}
		if xForY != -yForX {
			t.Errorf("方向应互为相反数: %v vs %v", xForY, yForX)
		}

		balance := xForY + 2*yForX
		if perspective(a, x, balance) != -perspective(a, y, balance) {
			t.Errorf("两户视角余额应互为相反数")
		}
	}
}

func TestDirectionOf(t *testing.T) {
	if directionOf(1.5) != dto.DirectionOwedToYou {
		t.Error("正余额应为 owed_to_you")
	}
	if directionOf(-0.5) != dto.DirectionYouOwe {
		t.Error("负余额应为 you_owe")
	}
	if directionOf(0) != dto.DirectionBalanced {
		t.Error("零余额应为 balanced")
	}
}
