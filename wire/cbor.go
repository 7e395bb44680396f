package wire

import "github.com/fxamacker/cbor/v2"

// EncodeCBORParameter CBOR-encodes v for use as a Parameter's Value, for
// inline-QoS parameters whose content is structured rather than a plain
// CDR primitive (e.g. a discovery endpoint's QoS snapshot), per
// SPEC_FULL.md's PL_CDR parameter-list encapsulation.
func EncodeCBORParameter(id ParameterID, v interface{}) (Parameter, error) {
	data, err := cbor.Marshal(v)
	if err != nil {
		return Parameter{}, err
	}
	return Parameter{ID: id, Value: data}, nil
}

// DecodeCBORParameter unmarshals a Parameter's Value produced by
// EncodeCBORParameter into v.
func DecodeCBORParameter(p Parameter, v interface{}) error {
	return cbor.Unmarshal(p.Value, v)
}
