package locker

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func condWith(priority uint64, releasableBy byte) Condition {
	return Condition{
		ExternalFee:   ExternalFee{Amount: big.NewInt(0)},
		ReleasableBy:  common.BytesToAddress([]byte{releasableBy}),
		GroupPriority: priority,
	}
}

func TestGroupConditionsOrdersByPriority(t *testing.T) {
	conds := []Condition{
		condWith(30, 0x01),
		condWith(10, 0x02),
		condWith(30, 0x03),
		condWith(20, 0x04),
	}

	groups := GroupConditions(conds)
	if len(groups) != 3 {
		t.Fatalf("groups = %d, want 3", len(groups))
	}
	if groups[0][0].GroupPriority != 10 || groups[1][0].GroupPriority != 20 || groups[2][0].GroupPriority != 30 {
		t.Fatalf("groups not ordered by ascending priority: %v", groups)
	}
	// Members keep their flat-list order inside a group.
	if len(groups[2]) != 2 {
		t.Fatalf("priority-30 group size = %d, want 2", len(groups[2]))
	}
	if groups[2][0].ReleasableBy != common.BytesToAddress([]byte{0x01}) {
		t.Fatalf("group order not stable: first member %s", groups[2][0].ReleasableBy.Hex())
	}
	if groups[2][1].ReleasableBy != common.BytesToAddress([]byte{0x03}) {
		t.Fatalf("group order not stable: second member %s", groups[2][1].ReleasableBy.Hex())
	}
}

func TestGroupConditionsEmpty(t *testing.T) {
	if groups := GroupConditions(nil); len(groups) != 0 {
		t.Fatalf("groups = %d, want 0", len(groups))
	}
}

func TestConditionAtAddressing(t *testing.T) {
	conds := []Condition{
		condWith(5, 0x01),
		condWith(1, 0x02),
		condWith(5, 0x03),
	}

	got, err := conditionAt(conds, 0, 0)
	if err != nil {
		t.Fatalf("conditionAt(0,0): %v", err)
	}
	if got.GroupPriority != 1 {
		t.Fatalf("group 0 priority = %d, want 1", got.GroupPriority)
	}

	got, err = conditionAt(conds, 1, 1)
	if err != nil {
		t.Fatalf("conditionAt(1,1): %v", err)
	}
	if got.ReleasableBy != common.BytesToAddress([]byte{0x03}) {
		t.Fatalf("conditionAt(1,1) = %s, want 0x..03", got.ReleasableBy.Hex())
	}
}

func TestConditionAtOutOfRange(t *testing.T) {
	conds := []Condition{condWith(1, 0x01)}
	cases := []struct{ group, index int }{
		{-1, 0}, {0, -1}, {1, 0}, {0, 1},
	}
	for _, c := range cases {
		if _, err := conditionAt(conds, c.group, c.index); !errors.Is(err, ErrConditionOutOfRange) {
			t.Fatalf("conditionAt(%d,%d) err = %v, want ErrConditionOutOfRange", c.group, c.index, err)
		}
	}
}

func TestGroupConditionsReturnsCopies(t *testing.T) {
	conds := []Condition{
		{ExternalFee: ExternalFee{Amount: big.NewInt(7), Receipt: common.BytesToAddress([]byte{0x09})}, GroupPriority: 1},
	}
	groups := GroupConditions(conds)
	groups[0][0].ExternalFee.Amount.SetInt64(99)
	if conds[0].ExternalFee.Amount.Int64() != 7 {
		t.Fatalf("grouped view aliases the stored fee amount")
	}
}
