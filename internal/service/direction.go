package service

import "github.com/lqCintern/farm-management-sub004/internal/dto"

// canonicalPair 户对规范化：id 字典序较小者为 a
func canonicalPair(x, y string) (a, b string) {
	if x < y {
		return x, y
	}
	return y, x
}

// resolveDelta 计算一次完成记录对户对余额的有符号增量
//
// 账本约定：hours_balance > 0 表示 b 欠 a。
// b 户工人为 a 户出工记 +hours，a 户工人为 b 户出工记 -hours；
// 双方与户对不匹配属于数据完整性问题，返回 ErrDirectionResolution。
func resolveDelta(householdA, householdB, workerHousehold, requestingHousehold string, hours float64) (float64, error) {
	switch {
	case workerHousehold == householdB && requestingHousehold == householdA:
		return hours, nil
	case workerHousehold == householdA && requestingHousehold == householdB:
		return -hours, nil
	}
	return 0, ErrDirectionResolution
}

// perspective 将规范户对余额换算为 viewer 视角：viewer 为 a 原样返回，为 b 取反
func perspective(householdA, viewer string, balance float64) float64 {
	if viewer == householdA {
		return round2(balance)
	}
	return round2(-balance)
}

// directionOf 视角余额 → 方向标签
func directionOf(balance float64) string {
	switch {
	case balance > 0:
		return dto.DirectionOwedToYou
	case balance < 0:
		return dto.DirectionYouOwe
	}
	return dto.DirectionBalanced
}
