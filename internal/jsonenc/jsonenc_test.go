package jsonenc

import "testing"

func TestMarshalKeepsHTMLCharacters(t *testing.T) {
	got, err := Marshal(map[string]string{"id": "u&1<b>"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(got) != `{"id":"u&1<b>"}` {
		t.Errorf("expected unescaped output, got %s", got)
	}
}

func TestMarshalError(t *testing.T) {
	if _, err := Marshal(func() {}); err == nil {
		t.Error("expected error for unsupported type")
	}
}
