package masking

// Filler 打码字符
const Filler = 'x'

// MaskPhone 10 位数字号码打码为 d xxx d x d xx d 的形式，例如 9876563127 -> 9xxx6x3xx7；
// 其他输入原样返回
func MaskPhone(phone string) string {
	if !isTenDigits(phone) {
		return phone
	}
	f := string(Filler)
	return phone[0:1] + f + f + f + phone[5:6] + f + phone[6:7] + f + f + phone[9:10]
}

func isTenDigits(s string) bool {
	if len(s) != 10 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
