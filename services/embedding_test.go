package services

import (
	"context"
	"math"
	"testing"
)

func TestMockEmbedderDeterministic(t *testing.T) {
	provider, err := NewEmbeddingProvider(EmbeddingConfig{Provider: "mock"})
	if err != nil {
		t.Fatal(err)
	}

	a, err := provider.Embed(context.Background(), []string{"same text", "other text"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := provider.Embed(context.Background(), []string{"same text"})
	if err != nil {
		t.Fatal(err)
	}

	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatal("same text must embed to the same vector")
		}
	}

	same := true
	for i := range a[0] {
		if a[0][i] != a[1][i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different texts embedded identically")
	}
}

func TestMockEmbedderUnitNorm(t *testing.T) {
	provider, _ := NewEmbeddingProvider(EmbeddingConfig{Provider: "mock"})
	vecs, err := provider.Embed(context.Background(), []string{"normalize me"})
	if err != nil {
		t.Fatal(err)
	}

	var sum float64
	for _, v := range vecs[0] {
		sum += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(sum)-1.0) > 1e-5 {
		t.Errorf("norm = %f, want 1.0", math.Sqrt(sum))
	}
	if len(vecs[0]) != provider.Dimension() {
		t.Errorf("dimension mismatch: %d vs %d", len(vecs[0]), provider.Dimension())
	}
}

func TestNormalize(t *testing.T) {
	vec := []float32{3, 4}
	Normalize(vec)
	if math.Abs(float64(vec[0])-0.6) > 1e-6 || math.Abs(float64(vec[1])-0.8) > 1e-6 {
		t.Errorf("normalize wrong: %v", vec)
	}

	zero := []float32{0, 0}
	Normalize(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Error("zero vector must stay zero")
	}
}

func TestUnknownProvider(t *testing.T) {
	if _, err := NewEmbeddingProvider(EmbeddingConfig{Provider: "quantum"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}
