// Package refresh 判断调用方何时应当用重新摘要的卡片替换当前卡片。
// 本包不做任何摘要，所有函数都是纯函数，只读写调用方持有的 SessionStats。
package refresh
