package email

import (
	"fmt"

	"github.com/h2trust/hydroledger/internal/ledger/model"
)

// WelcomeMessage builds the account creation notification.
func WelcomeMessage(name string, role model.Role) (subject, body string) {
	subject = "Welcome to the Green Hydrogen Credit Registry"
	body = fmt.Sprintf(
		"Hello %s,\n\n"+
			"Your account has been created with the %s role.\n\n"+
			"You can now sign in and use the registry API.\n",
		name, role,
	)
	return subject, body
}

// RetirementMessage builds the retirement certificate notification sent to
// the retiring owner.
func RetirementMessage(name string, credit *model.Credit) (subject, body string) {
	r := credit.Retirement
	subject = fmt.Sprintf("Retirement certificate %s issued", r.ReceiptID)
	body = fmt.Sprintf(
		"Hello %s,\n\n"+
			"Your retirement of %.2f kg from credit %s has been recorded.\n\n"+
			"Receipt:            %s\n"+
			"Carbon offset:      %.2f t CO2e\n"+
			"Renewable energy:   %.2f kWh equivalent\n"+
			"Certificate:        %s\n\n"+
			"The certificate is publicly verifiable at the URL above.\n",
		name, r.AmountRetired, credit.CreditID,
		r.ReceiptID, r.CarbonOffset, r.RenewableKwh, r.CertificateURL,
	)
	return subject, body
}
