package semantic

import (
	"testing"

	"github.com/MachinaAI/machina-core/engine/domain"
)

func TestPointIDDeterministic(t *testing.T) {
	a := PointID("acme:vfd:overcurrent")
	b := PointID("acme:vfd:overcurrent")
	if a != b {
		t.Fatal("point ids should be stable")
	}
	if a == PointID("acme:vfd:other") {
		t.Fatal("distinct atoms should map to distinct points")
	}
	if len(a) != 36 {
		t.Fatalf("not a uuid: %q", a)
	}
}

func TestAtomPayloadFields(t *testing.T) {
	payload := atomPayload(domain.Atom{
		AtomID:             "acme:vfd:x",
		Title:              "T",
		Vendor:             "acme",
		EquipmentType:      "vfd",
		Type:               domain.AtomConcept,
		ManualType:         domain.ManualTechnicalDoc,
		ManualQualityScore: 75,
		SourceURL:          "https://a.example/m.pdf",
	})
	if payload["atom_id"].GetStringValue() != "acme:vfd:x" {
		t.Fatal("atom_id missing")
	}
	if payload["source_url"].GetStringValue() != "https://a.example/m.pdf" {
		t.Fatal("source_url missing")
	}
	if payload["manual_quality_score"].GetIntegerValue() != 75 {
		t.Fatal("score missing")
	}
	if payload["equipment_type"].GetStringValue() != "vfd" {
		t.Fatal("equipment_type missing")
	}
}

func TestAtomPayloadOmitsEmptyEquipment(t *testing.T) {
	payload := atomPayload(domain.Atom{AtomID: "a:b:c", Vendor: "a"})
	if _, ok := payload["equipment_type"]; ok {
		t.Fatal("empty equipment_type should be omitted")
	}
}
