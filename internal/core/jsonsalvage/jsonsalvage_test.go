package jsonsalvage

import "testing"

func TestSalvageEmpty(t *testing.T) {
	v := Salvage("")
	if v.Kind != KindArray || len(v.Arr) != 0 {
		t.Errorf("expected empty array kind, got %+v", v)
	}
}

func TestSalvageStrictObject(t *testing.T) {
	v := Salvage(`{"Knight Rider": "骑士骑手"}`)
	if v.Kind != KindObject {
		t.Fatalf("expected object kind, got %v", v.Kind)
	}
	if v.Obj["Knight Rider"] != "骑士骑手" {
		t.Errorf("unexpected value: %+v", v.Obj)
	}
}

func TestSalvageFencedBlock(t *testing.T) {
	raw := "Here is the result:\n```json\n[{\"id\": 1, \"trans\": \"hello\"}]\n```\nThanks."
	v := Salvage(raw)
	if v.Kind != KindArray || len(v.Arr) != 1 {
		t.Fatalf("expected single-element array, got %+v", v)
	}
	if v.Arr[0]["id"] != float64(1) {
		t.Errorf("unexpected id: %v", v.Arr[0]["id"])
	}
}

func TestSalvageTrailingCommaAndUnquotedKeys(t *testing.T) {
	raw := `[{id: 1, trans: 'hi',},]`
	v := Salvage(raw)
	if v.Kind != KindArray || len(v.Arr) != 1 {
		t.Fatalf("expected one element after repair, got %+v", v)
	}
	if v.Arr[0]["trans"] != "hi" {
		t.Errorf("unexpected trans: %v", v.Arr[0]["trans"])
	}
}

func TestSalvageProseBeforeJSON(t *testing.T) {
	raw := `Sure, here you go: {"a": "b"} -- hope that helps!`
	v := Salvage(raw)
	if v.Kind != KindObject || v.Obj["a"] != "b" {
		t.Errorf("expected object with a=b, got %+v", v)
	}
}

func TestSalvageTotalGibberish(t *testing.T) {
	v := Salvage("the quick brown fox jumps over absolutely nothing resembling json")
	if v.Kind != KindArray || len(v.Arr) != 0 {
		t.Errorf("expected empty fallback, got %+v", v)
	}
}

func TestSalvageIdempotentOnValidJSON(t *testing.T) {
	raw := `[{"id":1,"polished":"x"},{"id":2,"polished":"y"}]`
	v1 := Salvage(raw)
	v2 := Salvage(raw)
	if len(v1.Arr) != len(v2.Arr) {
		t.Fatalf("expected structurally equal results, got %+v vs %+v", v1, v2)
	}
	for i := range v1.Arr {
		if v1.Arr[i]["id"] != v2.Arr[i]["id"] || v1.Arr[i]["polished"] != v2.Arr[i]["polished"] {
			t.Errorf("mismatch at %d: %+v vs %+v", i, v1.Arr[i], v2.Arr[i])
		}
	}
}

func TestSalvageUnterminatedArray(t *testing.T) {
	raw := `[{"id": 1, "trans": "partial"`
	v := Salvage(raw)
	if v.Kind != KindArray || len(v.Arr) != 1 {
		t.Fatalf("expected recovered single element, got %+v", v)
	}
}
