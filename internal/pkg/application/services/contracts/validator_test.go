package contracts

import (
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestValidateAccumulatesErrorsWithoutAborting(t *testing.T) {
	is := is.New(t)
	schema := testSchema(is)

	contract, errs, err := ValidateContract(map[string]string{
		"pkg_id":              "p1",
		"contract_start_date": "",
		"contract_end_date":   "2024-01-01",
		"contract_end_time":   "10:00",
		"contract_end_tz":     "UTC",
	}, schema)
	is.NoErr(err)

	is.Equal(errs["contract_start_date"], []string{"Date is required."})
	is.Equal(errs["policies"], []string{"None of the policies was selected, please choose one of the available."})

	_, hasTimeErr := errs["contract_start_time"]
	is.True(!hasTimeErr)
	_, hasTzErr := errs["contract_start_tz"]
	is.True(!hasTzErr)

	is.Equal(contract.Start, nil)
	is.True(contract.End != nil)
	is.Equal(contract.End.UTC(), time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))
}

func TestValidateRequiresPkgID(t *testing.T) {
	is := is.New(t)
	schema := testSchema(is)

	_, _, err := ValidateContract(map[string]string{"title": "no id"}, schema)
	is.True(err != nil)
}

func TestValidateDateRequiredWhenTimeProvided(t *testing.T) {
	is := is.New(t)
	schema := testSchema(is)

	_, errs, err := ValidateContract(map[string]string{
		"pkg_id":              "p1",
		"contract_start_time": "10:00",
	}, schema)
	is.NoErr(err)

	is.Equal(errs["contract_start_date"], []string{"Date is required when a time is provided."})
}

func TestValidateRejectsMalformedInput(t *testing.T) {
	is := is.New(t)
	schema := testSchema(is)

	contract, errs, err := ValidateContract(map[string]string{
		"pkg_id":              "p1",
		"contract_start_date": "01/02/2024",
		"contract_start_time": "25:99",
		"contract_start_tz":   "Atlantis/Lost",
		"contract_end_date":   "2024-06-01",
		"contract_end_time":   "09:00",
		"contract_end_tz":     "UTC",
	}, schema)
	is.NoErr(err)

	is.Equal(errs["contract_start_date"], []string{"Date format incorrect."})
	is.Equal(errs["contract_start_time"], []string{"Time format incorrect."})
	is.Equal(errs["contract_start_tz"], []string{"Invalid timezone."})
	is.Equal(contract.Start, nil)
	is.True(contract.End != nil)
}

func TestValidateRejectsMalformedTime(t *testing.T) {
	is := is.New(t)
	schema := testSchema(is)

	_, errs, err := ValidateContract(map[string]string{
		"pkg_id":              "p1",
		"contract_start_date": "2024-01-01",
		"contract_start_time": "quarter past nine",
	}, schema)
	is.NoErr(err)

	is.Equal(errs["contract_start_time"], []string{"Time format incorrect."})
}

func TestValidateRequiresDeclaredPolicyFields(t *testing.T) {
	is := is.New(t)
	schema := testSchema(is)

	_, errs, err := ValidateContract(map[string]string{
		"pkg_id":              "p1",
		"contract_start_date": "2024-01-01",
		"contract_start_time": "09:00",
		"contract_start_tz":   "UTC",
		"contract_end_date":   "2024-06-01",
		"contract_end_time":   "09:00",
		"contract_end_tz":     "UTC",
		"USAGE_DURING_INTERVAL": "on",
	}, schema)
	is.NoErr(err)

	msgs := errs["USAGE_DURING_INTERVAL_purpose"]
	is.Equal(len(msgs), 1)
	is.True(strings.Contains(msgs[0], "purpose is required."))
}

func TestValidateBuildsContractFromCompleteForm(t *testing.T) {
	is := is.New(t)
	schema := testSchema(is)

	contract, errs, err := ValidateContract(map[string]string{
		"pkg_id":              "p1",
		"title":               "Air Quality Contract",
		"contract_start_date": "2024-01-01",
		"contract_start_time": "09:00",
		"contract_start_tz":   "Europe/Vienna",
		"contract_end_date":   "2024-06-01",
		"contract_end_time":   "09:00:30",
		"contract_end_tz":     "UTC",
		"USAGE_DURING_INTERVAL":         "on",
		"USAGE_DURING_INTERVAL_purpose": "research",
	}, schema)
	is.NoErr(err)
	is.Equal(len(errs), 0)

	is.Equal(contract.PkgID, "p1")
	is.Equal(contract.Title, "Air Quality Contract")
	is.True(contract.Start != nil)
	is.True(contract.End != nil)

	is.Equal(len(contract.Policies), 1)
	is.Equal(contract.Policies[0].Type, "USAGE_DURING_INTERVAL")
	is.Equal(contract.Policies[0].Fields["purpose"], "research")
}
