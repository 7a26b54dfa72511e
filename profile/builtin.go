package profile

// Built-in profiles. Ordering matters: first specific devices, then
// generic per-vendor profiles and lastly generic per-driver profiles,
// so that first-match selection naturally yields the most specific
// profile.
var builtin = []*Profile{
	{
		Name:    "Ericsson F3705G",
		Vendor:  0x0bdb,
		Device:  0x1900,
		Control: 1,
		Data:    0,
		ModeCmd: map[Mode]string{
			ModeAuto:      "AT+CFUN=1\r",
			ModeForceUMTS: "AT+CFUN=6\r",
			ModeForceGPRS: "AT+CFUN=5\r",
		},
	},
	{
		Name:    "Alcatel X060s",
		Vendor:  0x1bbb,
		Device:  0x0000,
		Control: 1,
		Data:    2,
		ModeCmd: map[Mode]string{
			ModeAuto: "",
		},
	},
	{
		Name:    "Huawei K3520",
		Vendor:  0x12d1,
		Device:  0x1001,
		Control: 2,
		Data:    0,
		ModeCmd: map[Mode]string{
			ModeAuto:       "AT^SYSCFG=2,2,40000000,2,4\r", // auto = prefer UMTS
			ModeForceUMTS:  "AT^SYSCFG=14,2,40000000,2,4\r",
			ModeForceGPRS:  "AT^SYSCFG=13,1,40000000,2,4\r",
			ModePreferUMTS: "AT^SYSCFG=2,2,40000000,2,4\r",
			ModePreferGPRS: "AT^SYSCFG=2,1,40000000,2,4\r",
		},
	},
	{
		// Copied from the Huawei generic config; the device seems not
		// to get carrier after switching from (force-)gprs to umts.
		Name:    "Huawei E173",
		Vendor:  0x12d1,
		Device:  0x1433,
		Control: 2,
		Data:    0,
		ModeCmd: map[Mode]string{
			ModeAuto:       "AT^SYSCFG=2,2,40000000,2,4\r",
			ModeForceUMTS:  "AT^SYSCFG=14,2,40000000,2,4\r",
			ModeForceGPRS:  "AT^SYSCFG=13,1,40000000,2,4\r",
			ModePreferUMTS: "AT^SYSCFG=2,2,40000000,2,4\r",
			ModePreferGPRS: "AT^SYSCFG=2,1,40000000,2,4\r",
		},
	},

	// Vendor default profiles.
	{
		Name:    "Huawei generic",
		Vendor:  0x12d1,
		Control: 1,
		Data:    0,
		ModeCmd: map[Mode]string{
			ModeAuto:       "AT^SYSCFG=2,2,40000000,2,4\r", // auto = prefer UMTS
			ModeForceUMTS:  "AT^SYSCFG=14,2,40000000,2,4\r",
			ModeForceGPRS:  "AT^SYSCFG=13,1,40000000,2,4\r",
			ModePreferUMTS: "AT^SYSCFG=2,2,40000000,2,4\r",
			ModePreferGPRS: "AT^SYSCFG=2,1,40000000,2,4\r",
		},
	},
	{
		Name:    "ZTE generic",
		Vendor:  0x19d2,
		Control: 1,
		Data:    2,
		ModeCmd: map[Mode]string{
			ModeAuto:       "AT+ZSNT=0,0,0\r",
			ModeForceUMTS:  "AT+ZSNT=2,0,0\r",
			ModeForceGPRS:  "AT+ZSNT=1,0,0\r",
			ModePreferUMTS: "AT+ZSNT=0,0,2\r",
			ModePreferGPRS: "AT+ZSNT=0,0,1\r",
		},
	},

	// Driver profiles.
	{
		Name:    "Option generic",
		Driver:  "option",
		Control: 1,
		Data:    0,
		ModeCmd: map[Mode]string{
			ModeAuto: "",
		},
	},
	{
		Name:    "Sierra generic",
		Driver:  "sierra",
		Control: 0,
		Data:    2,
		ModeCmd: map[Mode]string{
			ModeAuto: "",
		},
	},
	{
		Name:    "HSO generic",
		Driver:  "hso",
		Control: 0,
		Data:    3,
		ModeCmd: map[Mode]string{
			ModeAuto:       "at_opsys=2,2\r", // auto = prefer UMTS
			ModeForceUMTS:  "at_opsys=1,2\r",
			ModeForceGPRS:  "at_opsys=0,2\r",
			ModePreferUMTS: "at_opsys=2,2\r",
			ModePreferGPRS: "at_opsys=3,2\r",
		},
	},
	{
		// Indices copied from the option generic profile.
		Name:    "CDC generic",
		Driver:  "cdc_acm",
		Control: 1,
		Data:    0,
		ModeCmd: map[Mode]string{
			ModeAuto: "",
		},
	},
	{
		Name:    "USB serial generic",
		Driver:  "usbserial",
		Control: 0,
		Data:    2,
		ModeCmd: map[Mode]string{
			ModeAuto: "",
		},
	},
}
