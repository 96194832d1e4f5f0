package dtypes

import (
	"errors"
	"math"
	"strconv"
	"testing"

	"github.com/gomlx/syncmem/pkg/core/dtypes/bfloat16"
	"github.com/x448/float16"
)

func TestMapOfNames(t *testing.T) {
	if MapOfNames["Float16"] != Float16 {
		t.Fatalf("expected MapOfNames[\"Float16\"] to be Float16, got %v", MapOfNames["Float16"])
	}
	if MapOfNames["float16"] != Float16 {
		t.Fatalf("expected MapOfNames[\"float16\"] to be Float16, got %v", MapOfNames["float16"])
	}
	if MapOfNames["f16"] != Float16 {
		t.Fatalf("expected MapOfNames[\"f16\"] to be Float16, got %v", MapOfNames["f16"])
	}
	if MapOfNames["bf16"] != BFloat16 {
		t.Fatalf("expected MapOfNames[\"bf16\"] to be BFloat16, got %v", MapOfNames["bf16"])
	}
}

func TestFromName(t *testing.T) {
	for name, want := range map[string]DType{"float32": Float32, "S64": Int64, "Int32": Int32, "c128": Complex128} {
		got, err := FromName(name)
		if err != nil {
			t.Fatalf("FromName(%q) failed: %+v", name, err)
		}
		if got != want {
			t.Fatalf("FromName(%q)=%s, wanted %s", name, got, want)
		}
	}
	if _, err := FromName("float8"); err == nil {
		t.Fatal("expected FromName(\"float8\") to fail")
	}
	if _, err := FromName("InvalidDType"); err == nil {
		t.Fatal("expected FromName(\"InvalidDType\") to fail")
	}
}

func TestSizes(t *testing.T) {
	cases := []struct {
		dtype DType
		size  int
	}{
		{Bool, 1}, {Int8, 1}, {Uint16, 2}, {Float16, 2}, {BFloat16, 2},
		{Int32, 4}, {Float32, 4}, {Float64, 8}, {Complex64, 8}, {Complex128, 16},
	}
	for _, c := range cases {
		if c.dtype.Size() != c.size {
			t.Errorf("%s.Size()=%d, wanted %d", c.dtype, c.dtype.Size(), c.size)
		}
		size, err := c.dtype.SizeForCount(10)
		if err != nil || size != 10*c.size {
			t.Errorf("%s.SizeForCount(10)=(%d, %v), wanted %d", c.dtype, size, err, 10*c.size)
		}
	}
}

func TestSizeForCountErrors(t *testing.T) {
	if _, err := Int32.SizeForCount(-1); err == nil {
		t.Error("expected SizeForCount(-1) to fail")
	}
	if _, err := Int32.SizeForCount(math.MaxInt/4 + 1); !errors.Is(err, ErrSizeOverflow) {
		t.Errorf("expected ErrSizeOverflow, got %v", err)
	}
	size, err := Uint8.SizeForCount(math.MaxInt)
	if err != nil || size != math.MaxInt {
		t.Errorf("Uint8.SizeForCount(MaxInt)=(%d, %v)", size, err)
	}
	defer func() {
		if recover() == nil {
			t.Error("expected InvalidDType.Size() to panic")
		}
	}()
	_ = InvalidDType.Size()
}

func TestFromGenericsType(t *testing.T) {
	if FromGenericsType[float16.Float16]() != Float16 {
		t.Error("float16.Float16 should map to Float16")
	}
	if FromGenericsType[bfloat16.BFloat16]() != BFloat16 {
		t.Error("bfloat16.BFloat16 should map to BFloat16")
	}
	if FromGenericsType[complex64]() != Complex64 || FromGenericsType[uint32]() != Uint32 {
		t.Error("complex64/uint32 mapped to the wrong dtype")
	}
	wantInt := Int64
	if strconv.IntSize == 32 {
		wantInt = Int32
	}
	if FromGenericsType[int]() != wantInt {
		t.Errorf("int should map to %s", wantInt)
	}
	if DType(99).String() != "DType(99)" {
		t.Errorf("unexpected name %q", DType(99).String())
	}
}
