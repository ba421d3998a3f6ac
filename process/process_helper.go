package process

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"unsafe"
)

// Read reads one T at addr. Pointer transfers 8 bytes only when both the
// target and this process are 64-bit, 4 otherwise; every other T transfers
// its in-memory size. T must not contain Go pointers, strings, slices or maps.
func Read[T any](m *RemoteMemory, addr ProcessMemoryAddress, relative bool) (T, error) {
	var zero T
	w, err := transferWidth[T]()
	if err != nil {
		return zero, err
	}

	data, err := m.ReadBytes(addr, ProcessMemorySize(w.Bytes(m.both64)), relative)
	if err != nil {
		return zero, err
	}
	return fromBytes[T](data, w)
}

// ReadArray reads count consecutive values of T in one transfer.
// A count of zero yields an empty slice without touching the target.
func ReadArray[T any](m *RemoteMemory, addr ProcessMemoryAddress, count int, relative bool) ([]T, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: negative count %d", ErrInvalidArgument, count)
	}
	w, err := transferWidth[T]()
	if err != nil {
		return nil, err
	}

	if count == 0 {
		return []T{}, nil
	}

	elem := int(w.Bytes(m.both64))
	if elem > 0 && count > math.MaxInt/elem {
		return nil, &ReadError{Address: addr, Err: fmt.Errorf("%w: %d elements of %d bytes overflow", ErrInvalidArgument, count, elem)}
	}
	data, err := m.ReadBytes(addr, ProcessMemorySize(elem*count), relative)
	if err != nil {
		return nil, err
	}

	result := make([]T, count)
	for i := range result {
		v, err := fromBytes[T](data[i*elem:(i+1)*elem], w)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		result[i] = v
	}
	return result, nil
}

// Write writes value at addr. Pointer transfers 8 bytes when the target is
// 64-bit, 4 otherwise.
func Write[T any](m *RemoteMemory, addr ProcessMemoryAddress, value T, relative bool) error {
	w, err := transferWidth[T]()
	if err != nil {
		return &WriteError{Address: addr, Err: err}
	}
	data, err := toBytes(value, w, m.is64)
	if err != nil {
		return &WriteError{Address: addr, Size: ProcessMemorySize(w.Bytes(m.is64)), Err: err}
	}
	return m.WriteBytes(addr, data, relative)
}

// WriteArray writes values back to back in one transfer
func WriteArray[T any](m *RemoteMemory, addr ProcessMemoryAddress, values []T, relative bool) error {
	w, err := transferWidth[T]()
	if err != nil {
		return &WriteError{Address: addr, Err: err}
	}

	elem := int(w.Bytes(m.is64))
	data := make([]byte, 0, elem*len(values))
	for i, v := range values {
		b, err := toBytes(v, w, m.is64)
		if err != nil {
			return &WriteError{Address: addr, Size: ProcessMemorySize(cap(data)), Err: fmt.Errorf("element %d: %w", i, err)}
		}
		data = append(data, b...)
	}
	return m.WriteBytes(addr, data, relative)
}

// transferWidth rejects types whose bytes mean nothing outside this process
func transferWidth[T any]() (Width, error) {
	rt := reflect.TypeFor[T]()
	if typeHasPointers(rt) {
		return Width{}, fmt.Errorf("%w: %s holds Go references and cannot be transferred", ErrInvalidArgument, rt)
	}
	return WidthOf[T](), nil
}

func typeHasPointers(rt reflect.Type) bool {
	switch rt.Kind() {
	case reflect.Ptr, reflect.UnsafePointer, reflect.Interface, reflect.Func, reflect.Map, reflect.Slice, reflect.String, reflect.Chan:
		return true
	case reflect.Array:
		return typeHasPointers(rt.Elem())
	case reflect.Struct:
		for i := 0; i < rt.NumField(); i++ {
			if typeHasPointers(rt.Field(i).Type) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// fromBytes reinterprets buf as a T. It is the only place raw target bytes
// become a Go value, and buf must be exactly the resolved transfer size.
func fromBytes[T any](buf []byte, w Width) (T, error) {
	var out T
	if w.IsPointer() {
		var v uint64
		switch len(buf) {
		case 4:
			v = uint64(binary.NativeEndian.Uint32(buf))
		case 8:
			v = binary.NativeEndian.Uint64(buf)
		default:
			return out, fmt.Errorf("%w: %d-byte pointer", ErrInvalidArgument, len(buf))
		}
		return any(Pointer(v)).(T), nil
	}

	size := int(unsafe.Sizeof(out))
	if len(buf) != size {
		return out, fmt.Errorf("%w: have %d bytes for a %d-byte value", ErrInvalidArgument, len(buf), size)
	}
	if size > 0 {
		copy(unsafe.Slice((*byte)(unsafe.Pointer(&out)), size), buf)
	}
	return out, nil
}

// toBytes is the inverse of fromBytes; wide selects 8-byte pointers
func toBytes[T any](v T, w Width, wide bool) ([]byte, error) {
	if w.IsPointer() {
		p := uint64(any(v).(Pointer))
		if wide {
			return binary.NativeEndian.AppendUint64(nil, p), nil
		}
		if p > math.MaxUint32 {
			return nil, fmt.Errorf("%w: pointer 0x%X does not fit a 32-bit target", ErrInvalidArgument, p)
		}
		return binary.NativeEndian.AppendUint32(nil, uint32(p)), nil
	}

	size := int(unsafe.Sizeof(v))
	out := make([]byte, size)
	if size > 0 {
		copy(out, unsafe.Slice((*byte)(unsafe.Pointer(&v)), size))
	}
	return out, nil
}
