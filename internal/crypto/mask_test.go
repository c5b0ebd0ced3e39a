package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMask(t *testing.T) {
	testCases := []struct {
		name     string
		value    string
		class    MaskClass
		expected string
	}{
		{"AccountNumber", "12345678", MaskAccount, "****-**78"},
		{"AccountShort", "123", MaskAccount, "123"},
		{"AccountMinimum", "1234", MaskAccount, "****-**34"},
		{"TwoTokenName", "João Silva", MaskName, "João S****"},
		{"ThreeTokenName", "Ana Maria Souza", MaskName, "Ana M****"},
		{"AccentedSecondToken", "Ana Élida", MaskName, "Ana É****"},
		{"SingleTokenName", "Madonna", MaskName, "Ma****"},
		{"SingleRuneName", "Á", MaskName, "Á****"},
		{"GenericLong", "secretvalue", MaskGeneric, "se***ue"},
		{"GenericShort", "abcd", MaskGeneric, "abcd"},
		{"GenericRunes", "ção1234ção", MaskGeneric, "çã***ão"},
		{"UnknownClassIsGeneric", "abcdefgh", MaskClass("other"), "ab***gh"},
		{"EmptyAccount", "", MaskAccount, ""},
		{"EmptyName", "", MaskName, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Mask(tc.value, tc.class))
		})
	}
}
