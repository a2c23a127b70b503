package usd

import "fmt"

// Get reads the attribute's authored value as T.
//
// It returns ErrAttributeNotFound for a nil attribute, ErrNoValue when the
// attribute is declared without a value, and ErrTypeMismatch when the stored
// value is not a T.
func Get[T any](a *Attribute) (T, error) {
	var zero T
	if a == nil {
		return zero, ErrAttributeNotFound
	}
	if a.Value == nil {
		return zero, fmt.Errorf("%w: %s", ErrNoValue, a.Name)
	}
	v, ok := a.Value.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s holds %s (%T)", ErrTypeMismatch, a.Name, a.TypeName, a.Value)
	}
	return v, nil
}

// GetAttribute looks up name on prim and reads it as T.
func GetAttribute[T any](p *Prim, name string) (T, error) {
	return Get[T](p.Attribute(name))
}

// MetadataToken reads a token-valued attribute metadata entry. String values
// are accepted too, since USDA writes tokens as quoted strings.
func MetadataToken(a *Attribute, key string) (Token, error) {
	if a == nil {
		return "", ErrAttributeNotFound
	}
	v, ok := a.Metadata(key)
	if !ok {
		return "", fmt.Errorf("%w: %s on %s", ErrMetadataNotFound, key, a.Name)
	}
	switch t := v.(type) {
	case Token:
		return t, nil
	case string:
		return Token(t), nil
	default:
		return "", fmt.Errorf("%w: metadata %s on %s is %T", ErrTypeMismatch, key, a.Name, v)
	}
}
