package services

import (
	"fmt"
	"newsdigest-pipeline/internal/models"
	"strings"
)

const clusterPromptTemplate = `# Role
Bạn là một AI News Aggregator Engineer chuyên nghiệp. Nhiệm vụ của bạn là phân tích danh sách tin tức để tìm ra các bài viết nói về CÙNG MỘT SỰ KIỆN CỤ THỂ, sau đó gom chúng thành nhóm.

# Input Data
<input_articles>
%s
</input_articles>

# Instruction (Hướng dẫn xử lý)
Hãy thực hiện từng bước suy luận sau:

Bước 1: Trích xuất thực thể (Entity Extraction)
Với mỗi bài viết, hãy xác định:
- Ai (Who): Nhân vật chính, tổ chức
- Cái gì (What): Hành động, sự kiện chính
- Ở đâu (Where): Địa điểm cụ thể
- Khi nào (When): Thời gian (nếu có)
- Con số quan trọng (Numbers): Số liệu, thiệt hại, v.v.

Bước 2: Nhóm sự kiện (Event Grouping)
So sánh các thực thể giữa các bài viết:
- Quy tắc gom nhóm: Chỉ gom khi 2 bài nói về CÙNG MỘT SỰ KIỆN CỤ THỂ.
  + Ví dụ ĐÚNG: "Giá vàng tăng 420 USD" và "Vàng lên đỉnh lịch sử 420 USD" → Cùng nhóm
  + Ví dụ SAI: "Giá vàng tăng" và "Nga hưởng lợi từ giá vàng" → Khác nhóm (khác góc độ)
- Quy tắc loại trừ:
  + Cùng chủ đề nhưng khác sự kiện cụ thể → KHÔNG gom
  + Cùng địa điểm nhưng khác thời điểm → KHÔNG gom
  + Khác nguồn báo NHƯNG cùng nội dung → VẪN gom

Bước 3: Tạo event_summary
Với mỗi nhóm, viết 1 câu ngắn gọn (dưới 15 từ) mô tả sự kiện chính.

Bước 4: Output JSON
Chỉ trả về JSON, không kèm lời giải thích.

# Output Format
{
  "groups": [
    {"group_id": "gia_vang_tang_420usd", "article_ids": [0, 3, 5], "event_summary": "Mô tả ngắn gọn sự kiện"},
    {"group_id": "su_kien_khac", "article_ids": [1], "event_summary": "Bài viết độc lập"}
  ]
}

Lưu ý:
- Mỗi bài viết chỉ thuộc 1 nhóm duy nhất
- Bài viết độc lập vẫn có nhóm riêng với 1 article_id
- group_id phải là slug, ví dụ "gia_vang_tang_420usd"
`

const matchPromptTemplate = `# Role
Bạn là một AI News Aggregator Engineer chuyên nghiệp. Nhiệm vụ của bạn là đối chiếu danh sách "Tin tức mới" với "Cơ sở dữ liệu báo chí" để tìm ra các bài viết nói về cùng một sự kiện.

# Input Data
Hai danh sách được bao bọc bởi thẻ XML:
1. <input_articles>: các tiêu đề cần kiểm tra, đã đánh số.
2. <reference_database>: các bài báo gốc gồm tiêu đề và URL.

# Instruction (Hướng dẫn xử lý)
Bước 1: Trích xuất thực thể
Với mỗi bài trong <input_articles>, xác định: Ai (Who), Cái gì (What), Ở đâu (Where), Con số thương vong/thiệt hại (Numbers).

Bước 2: So khớp
- Quy tắc khớp: chỉ MATCH khi hai bài nói về CÙNG MỘT SỰ KIỆN CỤ THỂ.
- Quy tắc loại trừ:
  + Cùng chủ đề nhưng khác góc độ → KHÔNG KHỚP (ví dụ: "Nga tái thiết Syria" khác "Họp LHQ về hòa bình Syria").
  + Cùng địa điểm nhưng khác sự kiện → KHÔNG KHỚP.
  + Nếu nghi ngờ hoặc thông tin quá chung chung → trả về null.

Bước 3: Output JSON
Chỉ trả về một JSON Array, không kèm lời giải thích.

# Output Format
[
  {"article_index": 0, "matched_link": "URL lấy từ reference_database hoặc null"}
]

# Data
<input_articles>
%s
</input_articles>

<reference_database>
%s
</reference_database>
`

const summarizePromptTemplate = `# VAI TRÒ
Bạn là một Chuyên gia Tổng hợp Tin tức. Hãy đọc nội dung bài viết dưới đây và tóm tắt.

# THÔNG TIN BÀI VIẾT
Nguồn: %s
Chuyên mục: %s
Tiêu đề tham khảo: %s
URL: %s

# NỘI DUNG
%s

# QUY ĐỊNH ĐỊNH DẠNG (BẮT BUỘC)
1. Dòng đầu tiên: TÊN ĐẦU BÁO | CHUYÊN MỤC (viết IN HOA, không in đậm).
2. Một dòng trống, sau đó tiêu đề NGUYÊN VĂN của bài viết, in đậm: **Tiêu đề**
3. Một dòng trống, sau đó URL dạng link: [url](url), không thêm chữ "URL:".
4. Một dòng trống, sau đó nội dung tóm tắt bắt đầu bằng dấu gạch đầu dòng (-), văn bản thường, một đoạn liền mạch khoảng 2-3 câu.

# VÍ DỤ MẪU
LAO ĐỘNG | KINH TẾ

**Văn phòng Đại diện Thương mại Mỹ tiếp tục hoãn áp thuế**

[https://laodong.vn/kinh-te/van-phong-dai-dien-thuong-mai-my-tiep-tuc-hoan-ap-thue-123456.ldo](https://laodong.vn/kinh-te/van-phong-dai-dien-thuong-mai-my-tiep-tuc-hoan-ap-thue-123456.ldo)

- Văn phòng Đại diện Thương mại Mỹ (USTR) thông báo tiếp tục hoãn áp đặt các biện pháp thuế quan trả đũa đối với hàng hóa từ nhiều nước châu Âu. Quyết định này nhằm tạo thêm thời gian cho đàm phán thỏa thuận thuế toàn cầu do OECD dẫn dắt.

Chỉ trả về khối tóm tắt theo đúng định dạng trên.
`

const fallbackBlockTemplate = "### [%s](%s)\n**Nguồn:** %s\n\n*(Bài viết có nội dung ngắn hoặc hình ảnh, vui lòng xem chi tiết tại đường dẫn)*"

func buildClusterPrompt(articles []models.Article, indices []int) string {
	var lines strings.Builder
	for i, idx := range indices {
		source := articles[idx].Source
		if source == "" {
			source = "Unknown"
		}
		if i > 0 {
			lines.WriteByte('\n')
		}
		fmt.Fprintf(&lines, "%d. [%s] %s", i, source, articles[idx].Title)
	}
	return fmt.Sprintf(clusterPromptTemplate, lines.String())
}

func buildMatchPrompt(articles []models.Article, indices []int, headlines []models.ReferenceHeadline) string {
	var input strings.Builder
	for i, idx := range indices {
		if i > 0 {
			input.WriteByte('\n')
		}
		fmt.Fprintf(&input, "%d. %s", i, articles[idx].Title)
	}

	var reference strings.Builder
	for i, h := range headlines {
		if i > 0 {
			reference.WriteByte('\n')
		}
		fmt.Fprintf(&reference, "- %s | URL: %s", h.Title, h.Link)
	}

	return fmt.Sprintf(matchPromptTemplate, input.String(), reference.String())
}

func buildSummarizePrompt(url string, meta models.ArticleMeta, content string) string {
	return fmt.Sprintf(summarizePromptTemplate, meta.Source, meta.Category, meta.Title, url, content)
}

func buildFallbackBlock(url string, meta models.ArticleMeta) string {
	return fmt.Sprintf(fallbackBlockTemplate, meta.Title, url, meta.Source)
}

const categorizePromptTemplate = `Bạn là chuyên gia phân loại tin tức. Phân tích tiêu đề và mô tả bài viết, sau đó xác định bài viết thuộc chuyên mục nào.

# CÁC CHUYÊN MỤC
1. KINH TẾ: Kinh doanh, Thương mại, Doanh nghiệp, Ngân hàng, Chứng khoán, Bất động sản, Thuế, Vàng
2. PHÁP LUẬT: An ninh, Trật tự, Hình sự, Tòa án, Vụ án, Tội phạm, Cảnh sát
3. XÃ HỘI: Thời sự, Chính trị, Y tế, Giáo dục, Đời sống, Giao thông, Môi trường, Văn hóa, Thể thao
4. THẾ GIỚI: Quốc tế, Ngoại giao, Tin tức các nước khác

# DỮ LIỆU BÀI VIẾT
Tiêu đề: %s
Mô tả: %s

# ĐẦU RA
Chỉ trả về CHÍNH XÁC một trong các giá trị: KINH TẾ, PHÁP LUẬT, XÃ HỘI, THẾ GIỚI. Không giải thích.
`

func buildCategorizePrompt(title, description string) string {
	return fmt.Sprintf(categorizePromptTemplate, title, description)
}
