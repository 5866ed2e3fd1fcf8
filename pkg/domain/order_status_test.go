package domain

import "testing"

func TestOrderStatusSequenceIsForwardOnly(t *testing.T) {
	for i, from := range orderSequence {
		for j, to := range orderSequence {
			got := CanAdvanceOrder(from, to)
			want := j > i && from != OrderDelivered
			if got != want {
				t.Fatalf("CanAdvanceOrder(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestOrderStatusTerminalStates(t *testing.T) {
	if CanAdvanceOrder(OrderDelivered, OrderFailed) {
		t.Fatal("delivered order must not move to failed")
	}
	if CanAdvanceOrder(OrderFailed, OrderSubmitted) {
		t.Fatal("failed order must not move forward")
	}
	if !CanAdvanceOrder(OrderGeneratingPDFs, OrderFailed) {
		t.Fatal("in-flight order should be able to fail")
	}
	if CanAdvanceOrder("bogus", OrderSubmitted) {
		t.Fatal("unknown status must not advance")
	}
}

func TestOrderStatusRank(t *testing.T) {
	if OrderStatusRank(OrderPendingPayment) != 0 {
		t.Fatalf("pending_payment should rank 0, got %d", OrderStatusRank(OrderPendingPayment))
	}
	if OrderStatusRank(OrderDelivered) != len(orderSequence)-1 {
		t.Fatalf("delivered should rank last, got %d", OrderStatusRank(OrderDelivered))
	}
	if OrderStatusRank(OrderFailed) != -1 {
		t.Fatalf("failed has no rank, got %d", OrderStatusRank(OrderFailed))
	}
}
