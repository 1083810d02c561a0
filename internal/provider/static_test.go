package provider

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	vperrors "github.com/wxxb789/vprism-core/internal/errors"
	"github.com/wxxb789/vprism-core/internal/model"
)

func TestStaticProvider_GetData_ReturnsConfiguredPoints(t *testing.T) {
	close := decimal.NewFromInt(100)
	points := []model.DataPoint{{Symbol: "600000", Close: &close}}
	p := NewStaticProvider("static-test", Capability{}, points)

	resp, err := p.GetData(context.Background(), model.Query{Asset: model.AssetStock, RawSymbols: []string{"600000"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Points) != 1 || resp.Points[0].Symbol != "600000" {
		t.Fatalf("unexpected points: %+v", resp.Points)
	}
	if resp.Source == nil || resp.Source.Name != "static-test" {
		t.Fatalf("expected Source.Name = static-test, got %+v", resp.Source)
	}
}

func TestStaticProvider_GetData_ReturnsConfiguredError(t *testing.T) {
	p := NewStaticProvider("static-test", Capability{}, nil)
	want := vperrors.New(vperrors.CodeProvider, "provider", "boom", false, nil)
	p.SetError(want)

	_, err := p.GetData(context.Background(), model.Query{Asset: model.AssetStock, RawSymbols: []string{"x"}})
	if err != want {
		t.Fatalf("expected configured error, got %v", err)
	}
}

func TestStaticProvider_StreamData_NotSupported(t *testing.T) {
	p := NewStaticProvider("static-test", Capability{}, nil)
	if _, err := p.StreamData(context.Background(), model.Query{}); err != ErrStreamingNotSupported {
		t.Fatalf("expected ErrStreamingNotSupported, got %v", err)
	}
}

func TestStaticProvider_HealthCheck_ReflectsSetHealthy(t *testing.T) {
	p := NewStaticProvider("static-test", Capability{}, nil)
	if !p.HealthCheck(context.Background()) {
		t.Fatal("expected default healthy=true")
	}
	p.SetHealthy(false)
	if p.HealthCheck(context.Background()) {
		t.Fatal("expected HealthCheck to reflect SetHealthy(false)")
	}
}
