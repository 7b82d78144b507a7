package rfc9211

import "testing"

func TestCacheStatusString(t *testing.T) {
	hit := CacheStatus{}
	hit.Hit()
	hit.TTL(376)
	if s := hit.String(); s != "Autocache; hit; ttl=376" {
		t.Fatalf("Cache-Status is %s", s)
	}

	miss := CacheStatus{Stored: true}
	miss.Forward(FwdReasonUriMiss)
	if s := miss.String(); s != "Autocache; fwd=uri-miss; stored" {
		t.Fatalf("Cache-Status is %s", s)
	}

	stale := CacheStatus{Detail: "expired"}
	stale.Forward(FwdReasonStale)
	if s := stale.String(); s != `Autocache; fwd=stale; detail="expired"` {
		t.Fatalf("Cache-Status is %s", s)
	}
}

func TestHitClearsFwdReason(t *testing.T) {
	cs := CacheStatus{}
	cs.Forward(FwdReasonStale)
	cs.Hit()
	if cs.FwdReason != "" {
		t.Fatalf("Fwd reason is %s", cs.FwdReason)
	}
}
