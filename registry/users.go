package registry

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/Velocidex/ordereddict"
	"github.com/apex/log"
	"www.velocidex.com/golang/go-artifacts/utils"
)

type UAC uint32

const (
	AccountDisabled                    UAC = 0x1
	HomeDirectoryRequired              UAC = 0x2
	PasswordNotRequired                UAC = 0x4
	TempDuplicateAccount               UAC = 0x8
	NormalAccount                      UAC = 0x10
	MNSLogonAccount                    UAC = 0x20
	InterdomainTrustAccount            UAC = 0x40
	WorkstationTrustAccount            UAC = 0x80
	ServerTrustAccount                 UAC = 0x100
	DontExpirePassword                 UAC = 0x200
	AccountAutoLocked                  UAC = 0x400
	EncryptedTextPasswordAllowed       UAC = 0x800
	SmartcardRequired                  UAC = 0x1000
	TrustedForDelegation               UAC = 0x2000
	NotDelegated                       UAC = 0x4000
	UseDESKeyOnly                      UAC = 0x8000
	DontRequirePreauth                 UAC = 0x10000
	PasswordExpired                    UAC = 0x20000
	TrustedToAuthenticateForDelegation UAC = 0x40000
	NoAuthDataRequired                 UAC = 0x80000
	PartialSecretsAccount              UAC = 0x100000
	UseAESKeys                         UAC = 0x200000
)

var uac_names = []struct {
	flag UAC
	name string
}{
	{AccountDisabled, "AccountDisabled"},
	{HomeDirectoryRequired, "HomeDirectoryRequired"},
	{PasswordNotRequired, "PasswordNotRequired"},
	{TempDuplicateAccount, "TempDuplicateAccount"},
	{NormalAccount, "NormalAccount"},
	{MNSLogonAccount, "MNSLogonAccount"},
	{InterdomainTrustAccount, "InterdomainTrustAccount"},
	{WorkstationTrustAccount, "WorkstationTrustAccount"},
	{ServerTrustAccount, "ServerTrustAccount"},
	{DontExpirePassword, "DontExpirePassword"},
	{AccountAutoLocked, "AccountAutoLocked"},
	{EncryptedTextPasswordAllowed, "EncryptedTextPasswordAllowed"},
	{SmartcardRequired, "SmartcardRequired"},
	{TrustedForDelegation, "TrustedForDelegation"},
	{NotDelegated, "NotDelegated"},
	{UseDESKeyOnly, "UseDESKeyOnly"},
	{DontRequirePreauth, "DontRequirePreauth"},
	{PasswordExpired, "PasswordExpired"},
	{TrustedToAuthenticateForDelegation, "TrustedToAuthenticateForDelegation"},
	{NoAuthDataRequired, "NoAuthDataRequired"},
	{PartialSecretsAccount, "PartialSecretsAccount"},
	{UseAESKeys, "UseAESKeys"},
}

func (self UAC) String() string {
	for _, n := range uac_names {
		if n.flag == self {
			return n.name
		}
	}
	return fmt.Sprintf("UAC(%#x)", uint32(self))
}

func (self UAC) MarshalText() ([]byte, error) {
	return []byte(self.String()), nil
}

// UACFlags lists the set account control bits from lowest to highest.
func UACFlags(value uint32) []UAC {
	result := []UAC{}
	for _, n := range uac_names {
		if value&uint32(n.flag) != 0 {
			result = append(result, n.flag)
		}
	}
	return result
}

type UserInfo struct {
	LastLogon           int64  `json:"last_logon"`
	PasswordLastSet     int64  `json:"password_last_set"`
	AccountExpires      int64  `json:"account_expires"`
	LastPasswordFailure int64  `json:"last_password_failure"`
	RelativeID          uint32 `json:"relative_id"`
	PrimaryGroupID      uint32 `json:"primary_group_id"`
	UACFlags            []UAC  `json:"user_account_control_flags"`
	CountryCode         uint16 `json:"country_code"`
	CodePage            uint16 `json:"code_page"`
	PasswordFailures    uint16 `json:"number_password_failures"`
	Logons              uint16 `json:"number_logons"`
	Username            string `json:"username"`
	SID                 string `json:"sid"`
}

func (self *UserInfo) ToDict() *ordereddict.Dict {
	flags := make([]string, 0, len(self.UACFlags))
	for _, f := range self.UACFlags {
		flags = append(flags, f.String())
	}

	return ordereddict.NewDict().
		Set("username", self.Username).
		Set("sid", self.SID).
		Set("relative_id", self.RelativeID).
		Set("primary_group_id", self.PrimaryGroupID).
		Set("last_logon", self.LastLogon).
		Set("password_last_set", self.PasswordLastSet).
		Set("account_expires", self.AccountExpires).
		Set("last_password_failure", self.LastPasswordFailure).
		Set("user_account_control_flags", flags).
		Set("country_code", self.CountryCode).
		Set("code_page", self.CodePage).
		Set("number_password_failures", self.PasswordFailures).
		Set("number_logons", self.Logons)
}

// ParseUserF decodes the fixed size F value of a SAM account key.
func ParseUserF(data []byte) (*UserInfo, error) {
	cursor := utils.NewCursor(data)

	// Major, minor, extended flags and extended size.
	err := cursor.Skip(8)
	if err != nil {
		return nil, err
	}

	times := make([]uint64, 5)
	for i := range times {
		times[i], err = cursor.U64LE()
		if err != nil {
			return nil, err
		}
	}

	result := &UserInfo{
		LastLogon: utils.FiletimeToUnix(times[0]),
		// times[1] is the last logoff which is never set.
		PasswordLastSet:     utils.FiletimeToUnix(times[2]),
		AccountExpires:      utils.FiletimeToUnix(times[3]),
		LastPasswordFailure: utils.FiletimeToUnix(times[4]),
	}

	result.RelativeID, err = cursor.U32LE()
	if err != nil {
		return nil, err
	}
	result.PrimaryGroupID, err = cursor.U32LE()
	if err != nil {
		return nil, err
	}
	acb, err := cursor.U32LE()
	if err != nil {
		return nil, err
	}
	result.UACFlags = UACFlags(acb)

	for _, field := range []*uint16{&result.CountryCode, &result.CodePage,
		&result.PasswordFailures, &result.Logons} {
		*field, err = cursor.U16LE()
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

var nt_authority_sid = []byte{1, 5, 0, 0, 0, 0, 0}

const user_sid_size = 28

// SIDFromV finds the account SID inside the variable length V value.
func SIDFromV(data []byte) (string, error) {
	idx := bytes.Index(data, nt_authority_sid)
	if idx < 0 {
		return "", utils.BadFormat("No SID in V value")
	}

	sid, err := utils.Slice(data, int64(idx), user_sid_size)
	if err != nil {
		return "", err
	}
	return utils.ParseSID(sid)
}

// ParseUsers joins the SAM Names keys (whose default value type
// carries the RID) with the per RID account keys.
func ParseUsers(entries []*RegistryEntry) []*UserInfo {
	type account struct {
		rid      string
		username string
	}
	accounts := []account{}
	f_values := make(map[string][]byte)
	v_values := make(map[string][]byte)

	for _, entry := range entries {
		if !strings.Contains(entry.Path, "Account\\Users") {
			continue
		}

		if strings.Contains(entry.Path, "Names\\") {
			for _, value := range entry.Values {
				accounts = append(accounts, account{value.DataType, entry.Name})
			}
			continue
		}

		if !strings.Contains(entry.Path, "\\Users\\0") {
			continue
		}
		for _, value := range entry.Values {
			switch value.Name {
			case "F":
				f_values[strings.ToUpper(entry.Name)] = value.Raw
			case "V":
				v_values[strings.ToUpper(entry.Name)] = value.Raw
			}
		}
	}

	result := []*UserInfo{}
	for _, a := range accounts {
		rid_label, username := a.rid, a.username
		rid, err := strconv.ParseUint(rid_label, 10, 32)
		if err != nil {
			log.WithField("rid", rid_label).
				WithField("username", username).
				Warn("Could not parse account RID")
			continue
		}

		key_name := fmt.Sprintf("%08X", rid)
		f, pres := f_values[key_name]
		if !pres {
			continue
		}

		info, err := ParseUserF(f)
		if err != nil {
			utils.STATS.Inc_RecordsSkipped()
			log.WithError(err).WithField("username", username).
				Warn("Could not parse account info")
			continue
		}
		info.Username = username

		v, pres := v_values[key_name]
		if pres {
			info.SID, err = SIDFromV(v)
			if err != nil {
				utils.DebugPrint("SID of %v: %v\n", username, err)
			}
		}

		result = append(result, info)
	}

	return result
}
