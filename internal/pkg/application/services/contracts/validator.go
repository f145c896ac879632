package contracts

import (
	"fmt"
	"time"

	"github.com/trusts-eu/catalog-connector/internal/pkg/domain"
)

const (
	errDateRequired         = "Date is required."
	errDateRequiredWithTime = "Date is required when a time is provided."
	errDateFormat           = "Date format incorrect."
	errTimeRequired         = "Time is required."
	errTimeFormat           = "Time format incorrect."
	errTimezoneRequired     = "Timezone is required."
	errTimezoneInvalid      = "Invalid timezone."
	errNoPolicySelected     = "None of the policies was selected, please choose one of the available."
)

// ValidateContract validates raw contract form input against the policy
// template schema. Field problems accumulate in the returned error map
// and never abort; only a missing pkg_id is unrecoverable and returns an
// error.
func ValidateContract(form map[string]string, schema *TemplateSchema) (*domain.ContractRequest, map[string][]string, error) {
	pkgID, ok := form["pkg_id"]
	if !ok || pkgID == "" {
		return nil, nil, fmt.Errorf("contract form is missing required key pkg_id")
	}

	errs := map[string][]string{}

	contract := &domain.ContractRequest{
		PkgID:    pkgID,
		Title:    form["title"],
		Start:    validateDateInput("contract_start", form, errs),
		End:      validateDateInput("contract_end", form, errs),
		Policies: validatePolicies(form, schema, errs),
	}

	return contract, errs, nil
}

// validateDateInput validates the three sub-fields <key>_date, <key>_time
// and <key>_tz and combines them into a localized timestamp.
func validateDateInput(key string, form map[string]string, errs map[string][]string) *time.Time {
	dateKey := key + "_date"
	timeKey := key + "_time"
	tzKey := key + "_tz"

	dateVal := form[dateKey]
	timeVal := form[timeKey]
	tzVal := form[tzKey]

	if dateVal == "" {
		if timeVal != "" {
			errs[dateKey] = append(errs[dateKey], errDateRequiredWithTime)
		} else {
			errs[dateKey] = append(errs[dateKey], errDateRequired)
		}
		return nil
	}

	dateOK := true
	if _, err := time.Parse("2006-01-02", dateVal); err != nil {
		errs[dateKey] = append(errs[dateKey], errDateFormat)
		dateOK = false
	}

	layout := "2006-01-02"
	value := dateVal
	timeOK := true

	if timeVal == "" {
		errs[timeKey] = append(errs[timeKey], errTimeRequired)
	} else if _, err := time.Parse("15:04", timeVal); err == nil {
		layout, value = "2006-01-02T15:04", dateVal+"T"+timeVal
	} else if _, err := time.Parse("15:04:05", timeVal); err == nil {
		layout, value = "2006-01-02T15:04:05", dateVal+"T"+timeVal
	} else {
		errs[timeKey] = append(errs[timeKey], errTimeFormat)
		timeOK = false
	}

	location := time.UTC
	if tzVal == "" {
		errs[tzKey] = append(errs[tzKey], errTimezoneRequired)
	} else {
		loc, err := time.LoadLocation(tzVal)
		if err != nil {
			errs[tzKey] = append(errs[tzKey], errTimezoneInvalid)
		} else {
			location = loc
		}
	}

	if !dateOK || !timeOK {
		return nil
	}

	parsed, err := time.ParseInLocation(layout, value, location)
	if err != nil {
		return nil
	}

	return &parsed
}

// validatePolicies renders policies from every template whose type key is
// present in the input. Every declared required field must carry a value.
func validatePolicies(form map[string]string, schema *TemplateSchema, errs map[string][]string) []domain.Policy {
	policies := []domain.Policy{}

	for _, tpl := range schema.PolicyTemplates {
		if _, selected := form[tpl.Type]; !selected {
			continue
		}

		policy := domain.Policy{Type: tpl.Type, Fields: map[string]string{}}

		for _, field := range tpl.Fields {
			fieldKey := tpl.Type + "_" + field.Name
			value := form[fieldKey]

			if value == "" {
				if field.Required {
					errs[fieldKey] = append(errs[fieldKey], fmt.Sprintf("%s was selected, %s is required.", tpl.Type, field.Name))
				}
				continue
			}

			policy.Fields[field.Name] = value
		}

		policies = append(policies, policy)
	}

	if len(policies) == 0 {
		errs["policies"] = append(errs["policies"], errNoPolicySelected)
	}

	return policies
}
