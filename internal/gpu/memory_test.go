package gpu

import (
	"errors"
	"testing"
)

func TestMemoryDeviceBuffers(t *testing.T) {
	d := NewMemoryDevice(64)
	a, err := d.CreateBuffer(VertexBuffer, 32)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := d.CreateBuffer(VertexBuffer, 32)
	if _, err := d.CreateBuffer(IndexBuffer, 1); !errors.Is(err, ErrOutOfMemory) {
		t.Fatalf("expected ErrOutOfMemory, got %v", err)
	}

	d.WriteBuffer(a, 4, []byte{1, 2, 3})
	d.CopyBuffer(a, b, 4, 0, 3)
	if got := d.Buffer(b)[:3]; got[0] != 1 || got[2] != 3 {
		t.Fatalf("copied bytes = %v", got)
	}

	d.DeleteBuffer(a)
	if d.UsedBytes() != 32 || d.BufferCount() != 1 {
		t.Fatalf("used %d bytes in %d buffers", d.UsedBytes(), d.BufferCount())
	}
}

func TestMemoryDeviceRecordsDraws(t *testing.T) {
	d := NewMemoryDevice(0)
	p := d.NewProgram("opaque")
	p.Use()
	d.SetState(RenderState{DepthTest: true, DepthWrite: true, ColorWrite: true})
	d.BindTexturePage(0, 2)
	d.BindMeshBuffers(1, 2)
	d.MultiDrawIndexed([]DrawCommand{{IndexCount: 6}})

	draws := d.Draws()
	if len(draws) != 1 || draws[0].Program != "opaque" || draws[0].Textures[0] != 2 || !draws[0].State.DepthWrite {
		t.Fatalf("draws = %+v", draws)
	}
	ev := d.Events()
	if len(ev) != 3 || ev[0].Kind != "use" || ev[2].Kind != "draw" {
		t.Fatalf("events = %+v", ev)
	}
	d.Reset()
	if len(d.Draws()) != 0 {
		t.Fatal("Reset kept draws")
	}
}

func TestMemoryDeviceRejectsOutOfRangeWrite(t *testing.T) {
	d := NewMemoryDevice(0)
	id, _ := d.CreateBuffer(IndexBuffer, 4)
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic")
		}
	}()
	d.WriteBuffer(id, 2, []byte{1, 2, 3})
}
