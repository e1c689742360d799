package wallets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const (
	addrA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	addrB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func TestIsAddress(t *testing.T) {
	cases := []struct {
		value string
		want  bool
	}{
		{addrA, true},
		{"0xD9E1CE17F2641F24AE83637AB66A2CCA9C378B9F", true},
		{"0xabc", false},
		{addrA + "aa", false},
		{"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", false},
		{"0xzzaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsAddress(tc.value); got != tc.want {
			t.Errorf("IsAddress(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}
}

func TestLoadFromList(t *testing.T) {
	got, err := Load("", " "+addrB+" ,"+addrA+", ,"+addrA)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Deduplicated and sorted
	want := []string{addrA, addrB}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load = %v, want %v", got, want)
	}
}

func TestLoadFromLinesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallets.txt")
	content := addrA + "\n\n  " + addrB + "  \nvitalik.eth\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := []string{addrA, addrB, "vitalik.eth"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load = %v, want %v", got, want)
	}
}

func TestLoadFromCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallets.csv")
	content := addrA + ",label one\n" + addrB + ",label two\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Only the first column counts
	want := []string{addrA, addrB}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load = %v, want %v", got, want)
	}
}

func TestLoadMergesFileAndList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallets.txt")
	if err := os.WriteFile(path, []byte(addrA+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path, addrB+","+addrA)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 wallets, got %v", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/wallets.txt", ""); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadLowercases(t *testing.T) {
	got, err := Load("", "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got[0] != addrA {
		t.Errorf("Load = %v, want [%s]", got, addrA)
	}
}

type stubResolver struct {
	names map[string]string
	err   error
}

func (r *stubResolver) ResolveENS(_ context.Context, name string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return r.names[name], nil
}

func TestResolveMixedInputs(t *testing.T) {
	resolver := &stubResolver{names: map[string]string{
		"vitalik.eth": "0xD8DA6BF26964AF9D7EED9E03E53415D37AA96045",
	}}

	got := Resolve(context.Background(), resolver,
		[]string{addrA, "vitalik.eth", "unknown.eth", "not-a-wallet"}, nil)

	want := []string{addrA, "0xd8da6bf26964af9d7eed9e03e53415d37aa96045"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve = %v, want %v", got, want)
	}
}

func TestResolveENSFailureSkips(t *testing.T) {
	resolver := &stubResolver{err: errors.New("rpc down")}

	got := Resolve(context.Background(), resolver, []string{"vitalik.eth", addrB}, nil)

	// A failing resolver only drops the ENS entries
	want := []string{addrB}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve = %v, want %v", got, want)
	}
}

func TestResolveWithoutResolver(t *testing.T) {
	got := Resolve(context.Background(), nil, []string{"vitalik.eth", addrA}, nil)

	want := []string{addrA}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve = %v, want %v", got, want)
	}
}
