package db

import "testing"

func TestAPIKeyLifecycle(t *testing.T) {
	d := openTestDB(t)

	label := "ci"
	id, err := CreateAPIKey(d, "abcdefgh", []byte("hash"), &label)
	if err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	if id == 0 {
		t.Error("expected non-zero id")
	}

	key, err := GetAPIKeyByPrefix(d, "abcdefgh")
	if err != nil || key == nil {
		t.Fatalf("GetAPIKeyByPrefix: %v %v", key, err)
	}
	if string(key.KeyHash) != "hash" || key.Label == nil || *key.Label != "ci" {
		t.Errorf("unexpected key %+v", key)
	}
	if key.RevokedAt != nil {
		t.Error("new key should not be revoked")
	}

	count, err := CountAPIKeys(d)
	if err != nil || count != 1 {
		t.Fatalf("CountAPIKeys = %d, %v", count, err)
	}

	revoked, err := RevokeAPIKey(d, "abcdefgh")
	if err != nil || !revoked {
		t.Fatalf("RevokeAPIKey = %v, %v", revoked, err)
	}
	again, err := RevokeAPIKey(d, "abcdefgh")
	if err != nil || again {
		t.Errorf("second revoke = %v, %v", again, err)
	}

	count, err = CountAPIKeys(d)
	if err != nil || count != 0 {
		t.Errorf("CountAPIKeys after revoke = %d, %v", count, err)
	}
}

func TestGetAPIKeyByPrefixMissing(t *testing.T) {
	d := openTestDB(t)

	key, err := GetAPIKeyByPrefix(d, "nope")
	if err != nil {
		t.Fatalf("GetAPIKeyByPrefix: %v", err)
	}
	if key != nil {
		t.Errorf("expected nil key, got %+v", key)
	}
}

func TestListAndTouchAPIKeys(t *testing.T) {
	d := openTestDB(t)

	first, err := CreateAPIKey(d, "aaaaaaaa", []byte("h1"), nil)
	if err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	if _, err := CreateAPIKey(d, "bbbbbbbb", []byte("h2"), nil); err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	if _, err := RevokeAPIKey(d, "bbbbbbbb"); err != nil {
		t.Fatalf("RevokeAPIKey: %v", err)
	}
	if err := TouchAPIKey(d, first); err != nil {
		t.Fatalf("TouchAPIKey: %v", err)
	}

	keys, err := ListAPIKeys(d)
	if err != nil {
		t.Fatalf("ListAPIKeys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keys))
	}
	if keys[0].KeyPrefix != "aaaaaaaa" || keys[0].LastUsedAt == nil {
		t.Errorf("first key not touched: %+v", keys[0])
	}
	if keys[1].RevokedAt == nil || keys[1].LastUsedAt != nil {
		t.Errorf("second key should be revoked and unused: %+v", keys[1])
	}
}
